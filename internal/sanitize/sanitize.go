// Package sanitize переводит возможно отсутствующие числовые значения в
// безопасное для показа представление. Ошибок нет: непригодный ввод дает ноль.
package sanitize

import (
	"math"
	"strconv"

	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultDecimals точность по умолчанию для Fixed.
const DefaultDecimals = 1

// Formatter форматирует значения с группировкой разрядов для заданной локали.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter создает Formatter для локали.
func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag)}
}

// ParseLocale разбирает BCP 47 тег, при ошибке возвращает американский английский.
func ParseLocale(s string) language.Tag {
	tag, err := language.Parse(s)
	if err != nil {
		return language.AmericanEnglish
	}
	return tag
}

var defaultFormatter = NewFormatter(language.AmericanEnglish)

// Fixed округляет значение до decimals знаков. Пустое значение дает ноль той же точности.
func (f *Formatter) Fixed(m models.Measure, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	v, ok := m.Value()
	if !ok {
		v = 0
	}
	// Половина округляется от нуля. При |v*10^d| >= 2^53 дробной части уже нет.
	p := math.Pow10(decimals)
	if scaled := v * p; math.Abs(scaled) < 1<<53 {
		v = math.Round(scaled) / p
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// Integer округляет до целого (половина вверх) и группирует разряды.
func (f *Formatter) Integer(m models.Measure) string {
	v, ok := m.Value()
	if !ok {
		return "0"
	}
	rounded := math.Floor(v + 0.5)
	if rounded >= math.MaxInt64 || rounded < math.MinInt64 {
		return f.printer.Sprintf("%.0f", rounded)
	}
	return f.printer.Sprintf("%d", int64(rounded))
}

// Float возвращает значение как есть, пустое значение дает 0.
func (f *Formatter) Float(m models.Measure) float64 {
	v, ok := m.Value()
	if !ok {
		return 0
	}
	return v
}

// Fixed форматирует значение форматтером по умолчанию.
func Fixed(m models.Measure, decimals int) string { return defaultFormatter.Fixed(m, decimals) }

// Integer форматирует значение форматтером по умолчанию.
func Integer(m models.Measure) string { return defaultFormatter.Integer(m) }

// Float возвращает значение форматтера по умолчанию.
func Float(m models.Measure) float64 { return defaultFormatter.Float(m) }
