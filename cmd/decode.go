package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"firestige.xyz/ipingest/internal/capture"
	"firestige.xyz/ipingest/internal/config"
	"firestige.xyz/ipingest/internal/core"
	"firestige.xyz/ipingest/internal/core/decoder"
	"firestige.xyz/ipingest/internal/flow"
	"firestige.xyz/ipingest/internal/log"
	"firestige.xyz/ipingest/internal/metrics"
	"firestige.xyz/ipingest/internal/sink"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode the IP datagrams of a pcap file",
	Long: `Decode every IP datagram of a classic pcap capture file.

Datagrams are validated, fragments reassembled and complete payloads
decoded as TCP, UDP or ICMP. Errors are logged per datagram and do not stop
the run; a summary is printed at the end.

Examples:
  ipingest decode -f capture.pcap
  ipingest decode -c ipingest.yml -f capture.pcap --progress`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := runDecode(ctx, cmd.OutOrStdout()); err != nil {
			exitWithError("decode failed", err)
		}
	},
}

var (
	decodeFile     string
	decodeProgress bool
)

func init() {
	decodeCmd.Flags().StringVarP(&decodeFile, "file", "f", "",
		"pcap file to decode (required)")
	decodeCmd.Flags().BoolVar(&decodeProgress, "progress", false,
		"show a progress bar on stderr")
	decodeCmd.MarkFlagRequired("file")
}

// decodeReport summarizes one decode run.
type decodeReport struct {
	Frames   int
	Skipped  int
	Errors   map[string]int
	Payloads sink.Counts
	Elapsed  time.Duration
}

func runDecode(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	f, err := os.Open(decodeFile)
	if err != nil {
		return fmt.Errorf("failed to open pcap file %s: %w", decodeFile, err)
	}
	defer f.Close()

	var r io.Reader = f
	if decodeProgress {
		fi, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", decodeFile, err)
		}
		bar := progressbar.NewOptions64(fi.Size(),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("decoding"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		pr := progressbar.NewReader(f, bar)
		r = &pr
	}

	slog.Info("decoding capture", "file", decodeFile, "config", configFile)
	report, err := decode(ctx, cfg, r)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

// decode runs every frame of the pcap stream r through a fresh processor.
// It stops early, without error, when ctx is cancelled.
func decode(ctx context.Context, cfg *config.GlobalConfig, r io.Reader) (*decodeReport, error) {
	src, err := capture.NewPcapSource(r)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	store := flow.NewStore(flow.Config{
		TTL:             cfg.Decoder.IPv4.ContextTTLDuration(),
		CleanupInterval: cfg.Decoder.Flow.CleanupIntervalDuration(),
	})
	defer store.Close()

	summary := sink.NewSummary()
	proc := decoder.NewIPv4Processor(decoder.Config{
		MaxFragments:  cfg.Decoder.IPv4.MaxFragments,
		ContextTTL:    cfg.Decoder.IPv4.ContextTTLDuration(),
		CheckChecksum: cfg.Decoder.IPv4.CheckChecksum,
	}, store, summary)

	report := &decodeReport{Errors: make(map[string]int)}
	start := time.Now()

	for ctx.Err() == nil {
		pkt, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		report.Frames++

		if err := proc.Process(pkt.Data); err != nil {
			kind := errorKind(err)
			report.Errors[kind]++
			level := slog.LevelWarn
			if kind == "unhandled_protocol" || kind == "unimplemented" {
				level = slog.LevelDebug
			}
			slog.Log(ctx, level, "datagram rejected", "frame", report.Frames, "kind", kind, "error", err)
		}
	}
	if ctx.Err() != nil {
		slog.Warn("decode interrupted", "frames", report.Frames)
	}

	report.Skipped = src.Skipped()
	report.Payloads = summary.Counts()
	report.Elapsed = time.Since(start)
	slog.Info("capture decoded",
		"frames", report.Frames,
		"skipped", report.Skipped,
		"payloads", report.Payloads.Total(),
		"contexts", store.Len(),
		"elapsed", report.Elapsed)
	return report, nil
}

// errorKind maps a processing error to a short stable label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyPacket):
		return "empty"
	case errors.Is(err, core.ErrTooSmall):
		return "too_small"
	case errors.Is(err, core.ErrTruncated):
		return "truncated"
	case errors.Is(err, core.ErrBadIHL):
		return "bad_ihl"
	case errors.Is(err, core.ErrBadChecksum):
		return "bad_checksum"
	case errors.Is(err, core.ErrOversize):
		return "oversize"
	case errors.Is(err, core.ErrUnhandledProtocol):
		return "unhandled_protocol"
	case errors.Is(err, core.ErrUnimplemented):
		return "unimplemented"
	default:
		return "transport"
	}
}

func printReport(out io.Writer, r *decodeReport) {
	fmt.Fprintf(out, "frames:   %d (%d non-IP skipped)\n", r.Frames, r.Skipped)
	fmt.Fprintf(out, "tcp:      %d\n", r.Payloads.TCP)
	fmt.Fprintf(out, "udp:      %d (%d dns)\n", r.Payloads.UDP, r.Payloads.DNS)
	fmt.Fprintf(out, "icmp:     %d\n", r.Payloads.ICMP)

	kinds := make([]string, 0, len(r.Errors))
	for k := range r.Errors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "error %s: %d\n", k, r.Errors[k])
	}
	fmt.Fprintf(out, "elapsed:  %s\n", r.Elapsed.Round(time.Millisecond))
}
