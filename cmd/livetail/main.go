// livetail subscribes to a DBN live gateway and prints records to the console.
// Usage: go run ./cmd/livetail --dataset GLBX.MDP3 --schema trades --symbols ES.FUT --stype parent
//
// With --out the session is also written to a DBN file: the session
// metadata followed by every record in arrival order.
//
// Required environment variables:
//
//	DBN_API_KEY     - API key for the gateway
//	DBN_GATEWAY_URL - WebSocket bridge URL (or pass --url)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/gateway"
	"github.com/rickgao/dbn-live/internal/live"
	"github.com/rickgao/dbn-live/internal/symbology"
)

func main() {
	url := flag.String("url", "", "gateway bridge URL (default $DBN_GATEWAY_URL)")
	dataset := flag.String("dataset", "GLBX.MDP3", "dataset code")
	schemaName := flag.String("schema", "trades", "schema to subscribe to")
	symbols := flag.String("symbols", "ALL_SYMBOLS", "comma-separated symbols")
	stypeName := flag.String("stype", "raw_symbol", "input symbology type")
	startAt := flag.String("start", "", "RFC3339 intraday replay start")
	snapshot := flag.Bool("snapshot", false, "request a book snapshot")
	limit := flag.Int("limit", 0, "stop after this many records (0 = unlimited)")
	asJSON := flag.Bool("json", false, "print records as JSON")
	out := flag.String("out", "", "also write the session to this DBN file")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	_ = godotenv.Load()

	// Setup logger
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if *url == "" {
		*url = os.Getenv("DBN_GATEWAY_URL")
	}
	apiKey := os.Getenv("DBN_API_KEY")
	if *url == "" || apiKey == "" {
		logger.Error("gateway credentials required",
			"url_set", *url != "",
			"api_key_set", apiKey != "",
		)
		logger.Info("Set environment variables: DBN_API_KEY and DBN_GATEWAY_URL")
		os.Exit(1)
	}

	schema, err := dbn.ParseSchema(*schemaName)
	if err != nil {
		logger.Error("invalid schema", "error", err)
		os.Exit(1)
	}
	stype, err := dbn.ParseSType(*stypeName)
	if err != nil {
		logger.Error("invalid stype", "error", err)
		os.Exit(1)
	}
	var start []time.Time
	if *startAt != "" {
		t, err := time.Parse(time.RFC3339, *startAt)
		if err != nil {
			logger.Error("invalid start", "error", err)
			os.Exit(1)
		}
		start = append(start, t)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := live.DefaultConfig()
	cfg.APIKey = apiKey
	cfg.Dataset = *dataset

	client, err := live.New(ctx, cfg, gateway.NewWSDialer(*url, logger), live.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	syms := strings.Split(*symbols, ",")
	if *snapshot {
		err = client.SubscribeWithSnapshot(ctx, *dataset, schema, stype, syms)
	} else {
		err = client.Subscribe(ctx, *dataset, schema, stype, syms, start...)
	}
	if err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}

	names := symbology.NewMap()
	client.OnRecord(func(rec dbn.Record) { names.ApplyRecord(rec) })

	md, err := client.Start(ctx)
	if err != nil {
		logger.Error("failed to start stream", "error", err)
		os.Exit(1)
	}
	names.ApplyMetadata(md, time.Now())
	logger.Info("streaming started - press Ctrl+C to stop",
		"session_id", client.SessionID(),
		"symbols", len(md.Symbols),
		"not_found", md.NotFound,
	)

	var file *dbn.FileWriter
	if *out != "" {
		if file, err = dbn.CreateFile(*out, md); err != nil {
			logger.Error("failed to create output file", "error", err)
			os.Exit(1)
		}
		logger.Info("writing session", "path", *out)
	}

	count := 0
	for rec := range client.Records(ctx) {
		if file != nil {
			if err := file.Write(rec); err != nil {
				logger.Warn("record not written", "rtype", rec.Header().RType, "error", err)
			}
		}
		if *asJSON {
			data, _ := json.Marshal(struct {
				RType  string     `json:"rtype"`
				Symbol string     `json:"symbol,omitempty"`
				Record dbn.Record `json:"record"`
			}{rec.Header().RType.String(), symbolOf(names, rec), rec})
			fmt.Println(string(data))
		} else {
			fmt.Println(describe(names, rec))
		}
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...", "records", count)
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Warn("stop failed", "error", err)
	}
	if file != nil {
		if err := file.Close(); err != nil {
			logger.Warn("output file close failed", "path", *out, "error", err)
		}
		logger.Info("session written", "path", *out, "records", file.Records())
	}
	qs := client.QueueStats()
	logger.Info("shutdown complete", "received", qs.TotalReceived, "dropped", qs.Dropped)
}

func symbolOf(names *symbology.Map, rec dbn.Record) string {
	sym, _ := names.Symbol(rec.Header().InstrumentID)
	return sym
}

func describe(names *symbology.Map, rec dbn.Record) string {
	hd := rec.Header()
	ts := hd.EventTime().Format("15:04:05.000000000")
	sym := symbolOf(names, rec)
	if sym == "" {
		sym = fmt.Sprintf("#%d", hd.InstrumentID)
	}

	switch m := rec.(type) {
	case *dbn.TradeMsg:
		return fmt.Sprintf("[TRADE] %s %-12s %c %d @ %s", ts, sym, m.Side, m.Size, price(m.Price))
	case *dbn.Mbp1Msg:
		l := m.Level
		return fmt.Sprintf("[MBP-1] %s %-12s %d x %s | %s x %d", ts, sym, l.BidSz, price(l.BidPx), price(l.AskPx), l.AskSz)
	case *dbn.Mbp10Msg:
		l := m.Levels[0]
		return fmt.Sprintf("[MBP-10] %s %-12s %d x %s | %s x %d", ts, sym, l.BidSz, price(l.BidPx), price(l.AskPx), l.AskSz)
	case *dbn.OhlcvMsg:
		return fmt.Sprintf("[%s] %s %-12s O=%s H=%s L=%s C=%s V=%d",
			strings.ToUpper(hd.RType.String()), ts, sym, price(m.Open), price(m.High), price(m.Low), price(m.Close), m.Volume)
	case *dbn.StatusMsg:
		return fmt.Sprintf("[STATUS] %s %-12s action=%d reason=%d trading=%c", ts, sym, m.Action, m.Reason, m.IsTrading)
	case *dbn.InstrumentDefMsg:
		return fmt.Sprintf("[DEF] %s %-12s raw=%s exchange=%s", ts, sym, m.RawSymbol, m.Exchange)
	case *dbn.SymbolMappingMsg:
		return fmt.Sprintf("[MAPPING] %s %s -> %s (#%d)", ts, m.STypeInSymbol, m.STypeOutSymbol, hd.InstrumentID)
	case *dbn.SystemMsg:
		if m.IsHeartbeat() {
			return fmt.Sprintf("[HEARTBEAT] %s", ts)
		}
		return fmt.Sprintf("[SYSTEM] %s %s", ts, m.Msg)
	case *dbn.ErrorMsg:
		return fmt.Sprintf("[ERROR] %s %s (code %d)", ts, m.Err, m.Code)
	default:
		return fmt.Sprintf("[%s] %s %-12s", strings.ToUpper(hd.RType.String()), ts, sym)
	}
}

func price(p decimal.NullDecimal) string {
	if !p.Valid {
		return "-"
	}
	return p.Decimal.String()
}
