package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/noah-isme/sheets-etl/internal/models"
	"github.com/noah-isme/sheets-etl/internal/service"
	"github.com/noah-isme/sheets-etl/pkg/postgrest"
)

// counter is implemented by postgrest.Client.
type counter interface {
	Count(ctx context.Context, table string, eq map[string]string) (int, error)
}

type comparison struct {
	Table       models.TableName
	Filter      string
	LegacyCount int
	GoCount     int
	Critical    bool
	Error       error
}

func (c comparison) match() bool {
	return c.Error == nil && c.LegacyCount == c.GoCount
}

func main() {
	var (
		legacyURL string
		legacyKey string
		goURL     string
		goKey     string
		date      string
		timeout   time.Duration
	)

	flag.StringVar(&legacyURL, "legacy-url", "", "Project URL of the datastore loaded by the legacy job")
	flag.StringVar(&legacyKey, "legacy-key", os.Getenv("LEGACY_SUPABASE_KEY"), "API key for the legacy datastore")
	flag.StringVar(&goURL, "go-url", os.Getenv("SUPABASE_URL"), "Project URL of the datastore loaded by sheets-etl")
	flag.StringVar(&goKey, "go-key", os.Getenv("SUPABASE_SERVICE_ROLE_KEY"), "API key for the sheets-etl datastore")
	flag.StringVar(&date, "date", "", "Target date to compare (YYYY-MM-DD, defaults to yesterday in UTC-5)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if legacyURL == "" || goURL == "" {
		log.Fatal("both -legacy-url and -go-url are required")
	}

	target := service.TargetDate(time.Now())
	if date != "" {
		parsed, err := models.ParseDate(date)
		if err != nil {
			log.Fatalf("invalid -date: %v", err)
		}
		target = parsed
	}

	legacy := postgrest.New(legacyURL, legacyKey, timeout)
	current := postgrest.New(goURL, goKey, timeout)

	ctx := context.Background()
	var comparisons []comparison
	breaking, optionalDiff := 0, 0
	for _, spec := range models.Tables() {
		comp := compareTable(ctx, legacy, current, spec, target)
		if !comp.match() {
			if comp.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(target, comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

// compareTable counts the rows of one table on both sides. Transactional tables are compared for the target
// day only and are critical; master data totals may legitimately drift and are reported as optional.
func compareTable(ctx context.Context, legacy, current counter, spec models.TableSpec, target models.Date) comparison {
	comp := comparison{Table: spec.Name}
	var filter map[string]string
	if spec.Transactional() {
		filter = map[string]string{spec.DateColumn: target.String()}
		comp.Filter = spec.DateColumn + "=eq." + target.String()
		comp.Critical = true
	}

	var err error
	if comp.LegacyCount, err = legacy.Count(ctx, string(spec.Name), filter); err != nil {
		comp.Error = fmt.Errorf("legacy count failed: %w", err)
		return comp
	}
	if comp.GoCount, err = current.Count(ctx, string(spec.Name), filter); err != nil {
		comp.Error = fmt.Errorf("go count failed: %w", err)
		return comp
	}
	return comp
}

func printReport(target models.Date, results []comparison) {
	fmt.Printf("Shadow Compare Report for %s\n", target)
	fmt.Println("======================================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.match() {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Table, res.Filter)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Legacy rows: %d | Go rows: %d | Critical: %t\n", res.LegacyCount, res.GoCount, res.Critical)
	}
}
