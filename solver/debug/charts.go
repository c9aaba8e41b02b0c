package debug

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// Charts 残差曲线绘制
type Charts struct {
	Record
}

// Render 输出 HTML 页面
func (c *Charts) Render(w io.Writer) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "残差曲线",
			Subtitle: fmt.Sprintf("自由度 %d，各阶段迭代残差", c.Dofs),
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:        "iteration",
			SplitNumber: 20,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:  "residual",
			Type:  "log",
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
	)
	longest := 0
	for _, a := range c.Attempts {
		longest = max(longest, len(a.History))
	}
	xs := make([]int, longest)
	for i := range xs {
		xs[i] = i
	}
	line.SetXAxis(xs)
	for i, a := range c.Attempts {
		items := make([]opts.LineData, len(a.History))
		for j, r := range a.History {
			items[j] = opts.LineData{Value: r}
		}
		line.AddSeries(fmt.Sprintf("%d-%s-%s(%s)", i, a.Stage, a.Part, a.Method), items)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "求解耗时",
			Subtitle: "每次分量求解的耗时（毫秒）",
		}),
	)
	names := make([]string, len(c.Attempts))
	items := make([]opts.BarData, len(c.Attempts))
	for i, a := range c.Attempts {
		names[i] = fmt.Sprintf("%s/%s", a.Stage, a.Part)
		items[i] = opts.BarData{Value: a.Duration.Milliseconds()}
	}
	bar.SetXAxis(names).AddSeries("duration", items)

	page := components.NewPage()
	page.AddCharts(line, bar)
	return page.Render(w)
}
