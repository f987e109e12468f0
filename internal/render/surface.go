package render

import (
	"fmt"
	"html/template"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// Surface единственная панель результатов.
//
// Панель состоит из закрепленной части, куда попадают промежуточные результаты
// (Prepend), основной части, которую заменяет Replace и дополняет Append,
// и области растра высот. Поэтому сводка высот остается видна над полным
// отчетом о глубине.
type Surface struct {
	mu      sync.Mutex
	pinned  []template.HTML
	body    []template.HTML
	figure  template.HTML
	version uint64
}

// NewSurface создает пустую панель.
func NewSurface() *Surface {
	return &Surface{}
}

// Reset очищает панель перед новой сессией.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = nil
	s.body = nil
	s.figure = ""
	s.version++
}

// Replace заменяет основную часть.
func (s *Surface) Replace(fragment template.HTML) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = []template.HTML{fragment}
	s.version++
}

// Prepend добавляет фрагмент в начало закрепленной части.
func (s *Surface) Prepend(fragment template.HTML) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = append([]template.HTML{fragment}, s.pinned...)
	s.version++
}

// Append добавляет фрагмент в конец основной части.
func (s *Surface) Append(fragment template.HTML) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = append(s.body, fragment)
	s.version++
}

// SetFigure задает растр высот.
func (s *Surface) SetFigure(fragment template.HTML) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.figure = fragment
	s.version++
}

// HTML текущая разметка панели.
func (s *Surface) HTML() template.HTML {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out template.HTML
	for _, f := range s.pinned {
		out += f
	}
	for _, f := range s.body {
		out += f
	}
	return out + s.figure
}

// Version растет при каждом изменении панели.
func (s *Surface) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// MarkdownExporter переводит HTML панели в Markdown для терминала.
type MarkdownExporter struct {
	conv *converter.Converter
}

// NewMarkdownExporter создает конвертер с поддержкой таблиц.
func NewMarkdownExporter() *MarkdownExporter {
	return &MarkdownExporter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Convert переводит фрагмент в Markdown.
func (e *MarkdownExporter) Convert(fragment template.HTML) (string, error) {
	md, err := e.conv.ConvertString(string(fragment))
	if err != nil {
		return "", fmt.Errorf("failed to convert results to markdown: %w", err)
	}
	return md, nil
}
