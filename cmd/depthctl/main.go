// Command depthctl запускает анализ глубины карьера из терминала.
//
// Usage:
//
//	depthctl analyze -polygon pit.geojson [-marker 20.59,78.96]
//	depthctl upload pit.tif
//	depthctl sites list | save -name NAME -polygon pit.geojson | delete -id ID -yes
//	depthctl scan -bbox minLat,minLng,maxLat,maxLng
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/akozadaev/go_quarry_depth_finder/internal/backend"
	"github.com/akozadaev/go_quarry_depth_finder/internal/config"
	"github.com/akozadaev/go_quarry_depth_finder/internal/geo"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/akozadaev/go_quarry_depth_finder/internal/orchestrator"
	"github.com/akozadaev/go_quarry_depth_finder/internal/overpass"
	"github.com/akozadaev/go_quarry_depth_finder/internal/render"
	"github.com/akozadaev/go_quarry_depth_finder/internal/sanitize"
	"github.com/akozadaev/go_quarry_depth_finder/internal/sites"
)

const usage = "usage: depthctl analyze|upload|sites|scan [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		logger.Error("depthctl: fatal", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *backend.Client
	renderer *render.Renderer
	markdown *render.MarkdownExporter
	out      io.Writer
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd string, args []string, out io.Writer) error {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		client:   backend.NewClient(cfg.BackendURL, backend.WithLogger(logger)),
		renderer: render.NewRenderer(sanitize.NewFormatter(sanitize.ParseLocale(cfg.Locale))),
		markdown: render.NewMarkdownExporter(),
		out:      out,
	}
	switch cmd {
	case "analyze":
		return a.analyze(ctx, args)
	case "upload":
		return a.upload(ctx, args)
	case "sites":
		return a.sites(ctx, args)
	case "scan":
		return a.scan(ctx, args)
	}
	return errors.New(usage)
}

func (a *app) newOrchestrator(opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	opts = append(opts, orchestrator.WithLogger(a.logger), orchestrator.WithRenderer(a.renderer))
	return orchestrator.New(a.client, a.cfg.Orchestrator(), opts...)
}

func (a *app) analyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	polygonPath := fs.String("polygon", "", "GeoJSON file with the quarry boundary")
	marker := fs.String("marker", "", "reference point as lat,lng")
	if err := fs.Parse(args); err != nil {
		return err
	}
	polygon, err := readPolygon(*polygonPath)
	if err != nil {
		return err
	}
	if a.cfg.RequireReferencePoint && *marker == "" {
		return errors.New("-marker is required when REQUIRE_REFERENCE_POINT is set")
	}

	orch, err := a.newOrchestrator()
	if err != nil {
		return err
	}
	sess, err := orch.DrawPolygon(ctx, polygon)
	if err != nil {
		return err
	}
	if *marker != "" {
		v, err := parseVertex(*marker)
		if err != nil {
			return err
		}
		if sess, err = orch.DropMarker(ctx, v); err != nil {
			return err
		}
	}
	return a.wait(ctx, orch, sess)
}

func (a *app) upload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: depthctl upload FILE.tif")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	orch, err := a.newOrchestrator()
	if err != nil {
		return err
	}
	sess, err := orch.UploadFile(ctx, args[0], f)
	if err != nil {
		return err
	}
	return a.wait(ctx, orch, sess)
}

func (a *app) sites(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: depthctl sites list|save|delete")
	}
	orch, err := a.newOrchestrator()
	if err != nil {
		return err
	}
	mgr := sites.NewManager(a.client, orch.Canvas(), orch.Events(), sites.WithLogger(a.logger), sites.WithRenderer(a.renderer), sites.WithLoader(orch))

	switch args[0] {
	case "list":
		list, err := mgr.Refresh(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(a.out, "No saved sites")
			return nil
		}
		for _, s := range list {
			fmt.Fprintf(a.out, "%s\t%s\t%s\t%d points\n", s.ID, s.Name, s.Date, len(s.Coords))
		}
		return nil
	case "save":
		fs := flag.NewFlagSet("sites save", flag.ContinueOnError)
		name := fs.String("name", "", "site name")
		polygonPath := fs.String("polygon", "", "GeoJSON file with the site boundary")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		polygon, err := readPolygon(*polygonPath)
		if err != nil {
			return err
		}
		err = mgr.Save(ctx, *name, polygon)
		fmt.Fprint(a.out, a.renderer.LogText(orch.Events().Entries()))
		return err
	case "delete":
		fs := flag.NewFlagSet("sites delete", flag.ContinueOnError)
		id := fs.String("id", "", "site id")
		yes := fs.Bool("yes", false, "confirm deletion")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		err := mgr.Delete(ctx, *id, *yes)
		fmt.Fprint(a.out, a.renderer.LogText(orch.Events().Entries()))
		return err
	}
	return fmt.Errorf("unknown sites command %q", args[0])
}

func (a *app) scan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	raw := fs.String("bbox", "", "minLat,minLng,maxLat,maxLng")
	if err := fs.Parse(args); err != nil {
		return err
	}
	bbox, err := parseBBox(*raw)
	if err != nil {
		return err
	}

	orch, err := a.newOrchestrator(orchestrator.WithScanner(overpass.NewClient(a.cfg.OverpassURL, nil, a.logger)))
	if err != nil {
		return err
	}
	markers, err := orch.ScanQuarries(ctx, bbox)
	if err != nil {
		return err
	}
	for _, m := range markers {
		fmt.Fprintf(a.out, "%s/%d\t%.6f,%.6f\t%s\n", m.OSMType, m.OSMID, m.Lat, m.Lng, m.Name)
	}
	fmt.Fprintf(a.out, "%d quarries found\n", len(markers))
	return nil
}

// wait ждет завершения сессии и печатает панель результатов и журнал.
func (a *app) wait(ctx context.Context, orch *orchestrator.Orchestrator, sess *orchestrator.Session) error {
	if err := sess.Wait(ctx); err != nil {
		return err
	}
	if err := orch.Close(ctx); err != nil {
		return err
	}

	snap := orch.Snapshot()
	md, err := a.markdown.Convert(snap.HTML)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, md)
	fmt.Fprintln(a.out)
	fmt.Fprint(a.out, a.renderer.LogText(snap.Log))

	if sess.Stage() == orchestrator.StageFailed && !sess.Fallback() {
		return sess.Err()
	}
	return nil
}

func readPolygon(path string) (models.Polygon, error) {
	if path == "" {
		return nil, errors.New("-polygon is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read polygon: %w", err)
	}
	return geo.ParseGeoJSON(data)
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseVertex(s string) (models.Vertex, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return models.Vertex{}, err
	}
	return models.Vertex{Lat: v[0], Lng: v[1]}, nil
}

func parseBBox(s string) (models.BoundingBox, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return models.BoundingBox{}, err
	}
	b := models.BoundingBox{MinLat: v[0], MinLng: v[1], MaxLat: v[2], MaxLng: v[3]}
	if b.MinLat > b.MaxLat || b.MinLng > b.MaxLng {
		return models.BoundingBox{}, fmt.Errorf("invalid bounding box %q", s)
	}
	return b, nil
}
