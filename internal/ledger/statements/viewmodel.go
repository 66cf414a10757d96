package statements

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders statement amounts with locale-aware thousands grouping
// for display surfaces that consume the engine's output.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for the given BCP 47 tag, falling back to
// English on an unknown tag.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Amount renders a decimal with grouping and two fraction digits.
func (f *Formatter) Amount(d decimal.Decimal) string {
	v, _ := d.Round(2).Float64()
	return f.printer.Sprintf("%.2f", v)
}

// SectionView is a render-ready statement section.
type SectionView struct {
	Title string
	Lines []LineView
	Total string
}

// LineView is a render-ready statement line.
type LineView struct {
	Code   string
	Name   string
	Amount string
}

// Section formats a computed section for display.
func (f *Formatter) Section(s Section) SectionView {
	view := SectionView{Title: s.Title, Total: f.Amount(s.Total)}
	for _, l := range s.Lines {
		view.Lines = append(view.Lines, LineView{Code: l.Code, Name: l.Name, Amount: f.Amount(l.Amount)})
	}
	return view
}
