// Package render формирует отчеты анализа в виде HTML фрагментов и ведет
// поверхность результатов, которую видит пользователь.
package render

import (
	"bytes"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/akozadaev/go_quarry_depth_finder/internal/eventlog"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/akozadaev/go_quarry_depth_finder/internal/sanitize"
	"github.com/microcosm-cc/bluemonday"
)

// Renderer превращает статистику и события в HTML фрагменты.
// Все числа проходят через sanitize, сообщения backend через bluemonday.
type Renderer struct {
	tmpl   *template.Template
	format *sanitize.Formatter
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewRenderer создает Renderer. При format == nil используется локаль en-US.
func NewRenderer(format *sanitize.Formatter) *Renderer {
	if format == nil {
		format = sanitize.NewFormatter(sanitize.ParseLocale("en-US"))
	}
	r := &Renderer{format: format, policy: bluemonday.UGCPolicy(), strict: bluemonday.StrictPolicy()}
	r.tmpl = template.Must(template.New("fragments").Funcs(template.FuncMap{
		"fixed":    r.format.Fixed,
		"integer":  r.format.Integer,
		"hectares": r.hectares,
		"safe":     r.safe,
		"icon":     Icon,
		"color":    Color,
		"clock":    clock,
	}).Parse(fragments))
	return r
}

// Icon значок уровня записи.
func Icon(s eventlog.Severity) string {
	switch s {
	case eventlog.Success:
		return "✅"
	case eventlog.Error:
		return "❌"
	case eventlog.Warning:
		return "⚠️"
	default:
		return "🔍"
	}
}

// Color цвет уровня записи.
func Color(s eventlog.Severity) string {
	switch s {
	case eventlog.Success:
		return "#2ecc71"
	case eventlog.Error:
		return "#e74c3c"
	case eventlog.Warning:
		return "#f39c12"
	default:
		return "#95a5a6"
	}
}

func clock(t time.Time) string {
	return t.Format("15:04:05")
}

func (r *Renderer) hectares(m models.Measure) string {
	return r.format.Fixed(models.NewMeasure(r.format.Float(m)/10000), 2)
}

func (r *Renderer) safe(s string) template.HTML {
	return template.HTML(r.policy.Sanitize(s))
}

func (r *Renderer) execute(name string, data any) template.HTML {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return template.HTML("<p>" + template.HTMLEscapeString("render error: "+err.Error()) + "</p>")
	}
	return template.HTML(buf.String())
}

// Loading заглушка на время загрузки.
func (r *Renderer) Loading() template.HTML {
	return r.execute("loading", nil)
}

// Status строка состояния.
func (r *Renderer) Status(message string) template.HTML {
	return r.execute("status", message)
}

// Banner баннер с сообщением заданного уровня.
func (r *Renderer) Banner(severity eventlog.Severity, message string) template.HTML {
	return r.execute("banner", struct {
		Severity eventlog.Severity
		Message  string
	}{severity, message})
}

// ErrorBanner баннер ошибки.
func (r *Renderer) ErrorBanner(message string) template.HTML {
	return r.Banner(eventlog.Error, message)
}

// ElevationSummary промежуточный результат этапа высот.
func (r *Renderer) ElevationSummary(resp *models.ElevationResponse) template.HTML {
	if resp == nil {
		resp = &models.ElevationResponse{}
	}
	return r.execute("elevation", resp)
}

// DepthReport полный отчет о глубине.
func (r *Renderer) DepthReport(stats models.DepthStatistics, fallback bool) template.HTML {
	return r.execute("depth", struct {
		Stats    models.DepthStatistics
		Fallback bool
	}{stats, fallback})
}

// Visualization изображение глубин с подключением просмотрщика.
func (r *Renderer) Visualization(src string) template.HTML {
	return r.execute("visualization", src)
}

// Figure растр высот этапа get_dem.
func (r *Renderer) Figure(src string) template.HTML {
	return r.execute("figure", src)
}

// UploadReport результат анализа загруженного DEM.
func (r *Renderer) UploadReport(resp *models.UploadResponse) template.HTML {
	return r.execute("upload", resp)
}

// ScanSummary найденные карьеры.
func (r *Renderer) ScanSummary(markers []models.QuarryMarker) template.HTML {
	return r.execute("scan", markers)
}

// Log показывает журнал целиком, новые записи внизу.
func (r *Renderer) Log(entries []eventlog.Entry) template.HTML {
	return r.execute("log", entries)
}

// Sites список сохраненных участков.
func (r *Renderer) Sites(sites []models.Site) template.HTML {
	return r.execute("sites", sites)
}

// LogText журнал в виде текста для терминала.
func (r *Renderer) LogText(entries []eventlog.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString("[")
		b.WriteString(clock(e.Timestamp))
		b.WriteString("] ")
		b.WriteString(Icon(e.Severity))
		b.WriteString(" ")
		b.WriteString(html.UnescapeString(r.strict.Sanitize(e.Message)))
		b.WriteString("\n")
	}
	return b.String()
}

// Metric форматирует число для строки журнала.
func (r *Renderer) Metric(m models.Measure, decimals int) string {
	return r.format.Fixed(m, decimals)
}

// Count форматирует целое с группировкой разрядов.
func (r *Renderer) Count(m models.Measure) string {
	return r.format.Integer(m)
}
