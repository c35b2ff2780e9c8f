// Package metrics scores predictions against known labels.
package metrics

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// Accuracy returns the fraction of positions where yTrue and yPred agree.
// Empty input scores zero.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// ClassScore holds per-class precision, recall and F1.
type ClassScore struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a per-class classification report with summary rows.
type Report struct {
	Classes     []ClassScore
	Accuracy    float64
	MacroAvg    ClassScore
	WeightedAvg ClassScore
	Total       int
}

// NewReport scores yPred against yTrue. names[c] is the display name of code
// c; codes without a name are shown as numbers. Classes appear in code order
// and include every code present in either slice. Undefined ratios are zero.
func NewReport(yTrue, yPred []int, names []string) Report {
	codes := map[int]bool{}
	maxCode := -1
	for _, y := range append(append([]int{}, yTrue...), yPred...) {
		codes[y] = true
		maxCode = max(maxCode, y)
	}

	support := lo.CountValues(yTrue)
	predicted := lo.CountValues(yPred)
	tp := map[int]int{}
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			tp[yTrue[i]]++
		}
	}

	r := Report{
		Accuracy: Accuracy(yTrue, yPred),
		Total:    len(yTrue),
	}

	var macro, weighted ClassScore
	for c := 0; c <= maxCode; c++ {
		if !codes[c] {
			continue
		}
		s := ClassScore{
			Name:      className(c, names),
			Precision: ratio(tp[c], predicted[c]),
			Recall:    ratio(tp[c], support[c]),
			Support:   support[c],
		}
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		}
		r.Classes = append(r.Classes, s)

		macro.Precision += s.Precision
		macro.Recall += s.Recall
		macro.F1 += s.F1
		w := float64(s.Support)
		weighted.Precision += w * s.Precision
		weighted.Recall += w * s.Recall
		weighted.F1 += w * s.F1
	}

	if n := float64(len(r.Classes)); n > 0 {
		r.MacroAvg = ClassScore{
			Name:      "macro avg",
			Precision: macro.Precision / n,
			Recall:    macro.Recall / n,
			F1:        macro.F1 / n,
			Support:   r.Total,
		}
	}
	if r.Total > 0 {
		total := float64(r.Total)
		r.WeightedAvg = ClassScore{
			Name:      "weighted avg",
			Precision: weighted.Precision / total,
			Recall:    weighted.Recall / total,
			F1:        weighted.F1 / total,
			Support:   r.Total,
		}
	}
	return r
}

func className(code int, names []string) string {
	if code >= 0 && code < len(names) {
		return names[code]
	}
	return strconv.Itoa(code)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Render writes the report as an aligned text table.
func (r Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Genre", "Precision", "Recall", "F1", "Support"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	})

	for _, s := range r.Classes {
		table.Append(scoreRow(s))
	}
	table.Append([]string{"", "", "", "", ""})
	table.Append([]string{"accuracy", "", "", fmt.Sprintf("%.2f", r.Accuracy), strconv.Itoa(r.Total)})
	table.Append(scoreRow(r.MacroAvg))
	table.Append(scoreRow(r.WeightedAvg))
	table.Render()
}

func scoreRow(s ClassScore) []string {
	return []string{
		s.Name,
		fmt.Sprintf("%.2f", s.Precision),
		fmt.Sprintf("%.2f", s.Recall),
		fmt.Sprintf("%.2f", s.F1),
		strconv.Itoa(s.Support),
	}
}
