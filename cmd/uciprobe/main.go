// Command uciprobe runs one engine analysis from a YAML config and prints
// the progress batches and the final best move. Useful for smoke-testing an
// engine binary and for watching what a session puts on the wire (-debug).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"github.com/enginekit/ucisession"
	"github.com/enginekit/ucisession/protocol"
)

func main() {
	configPath := flag.String("config", "uciprobe.yaml", "path to the YAML config file")
	debug := flag.Bool("debug", false, "log protocol traffic")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if *debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("analysis failed")
	}
}

func run(ctx context.Context, cfg *Config, log zerolog.Logger) error {
	session := ucisession.NewSession(
		ucisession.WithLogger(log),
		ucisession.WithFlushInterval(500*time.Millisecond),
	)

	id, err := session.Start(ctx, cfg.Engine.Path)
	if err != nil {
		return err
	}
	defer session.Kill()
	log.Info().Str("name", id.Name).Str("author", id.Author).Int("options", len(id.Options)).Msg("engine ready")

	if cfg.Analysis.MultiPV > 1 {
		if err := session.SetOption("MultiPV", strconv.Itoa(cfg.Analysis.MultiPV)); err != nil {
			return err
		}
	}
	for name, value := range cfg.Engine.Options {
		if err := session.SetOption(name, value); err != nil {
			return err
		}
	}

	if err := session.NewGame(ctx); err != nil {
		return err
	}

	go printEvents(session, log)

	<-session.Position(cfg.Analysis.FEN, cfg.Analysis.Moves...)

	search := session.Go(cfg.Analysis.Depth)
	if cfg.Analysis.Depth <= 0 {
		// Open-ended search: run until interrupted, then collect the best
		// move found so far.
		<-search
		<-ctx.Done()
		return printResult(<-session.Stop())
	}

	select {
	case result := <-search:
		return printResult(result)
	case <-ctx.Done():
		return printResult(<-session.Stop())
	}
}

func printResult(result ucisession.SearchResult) error {
	if result.Err != nil {
		return result.Err
	}
	fmt.Printf("bestmove %s", result.Best.Move)
	if result.Best.Ponder != "" {
		fmt.Printf(" ponder %s", result.Best.Ponder)
	}
	fmt.Println()
	return nil
}

func printEvents(session *ucisession.Session, log zerolog.Logger) {
	for ev := range session.Events() {
		switch ev.Type {
		case ucisession.EventProgress:
			for _, sp := range ev.Progress {
				fmt.Println(formatProgress(sp))
			}
		case ucisession.EventStateChanged:
			log.Debug().Stringer("from", ev.From).Stringer("to", ev.To).Msg("state")
		case ucisession.EventExited:
			log.Warn().Err(ev.Err).Msg("engine exited")
			return
		case ucisession.EventError:
			log.Error().Err(ev.Err).Msg("session error")
		}
	}
}

func formatProgress(sp protocol.SearchProgress) string {
	score := "?"
	if sp.Score != nil {
		switch sp.Score.Type {
		case protocol.ScoreMate:
			score = fmt.Sprintf("#%d", sp.Score.Value)
		default:
			score = fmt.Sprintf("%+.2f", float64(sp.Score.Value)/100)
		}
	}
	line := fmt.Sprintf("depth %2d  score %-7s nodes %d", sp.Depth, score, sp.Nodes)
	if len(sp.PV) > 0 {
		pv := sp.PV
		if len(pv) > 8 {
			pv = pv[:8]
		}
		for _, m := range pv {
			line += " " + m
		}
	}
	return line
}
