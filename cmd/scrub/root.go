package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/insight-tool/internal/app/bootstrap"
	appconfig "github.com/wolfman30/insight-tool/internal/config"
	"github.com/wolfman30/insight-tool/internal/pii"
	"github.com/wolfman30/insight-tool/internal/redaction"
	"github.com/wolfman30/insight-tool/internal/transcript"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

type scrubOptions struct {
	participant string
	interviewer string
	threshold   float64
	useServices bool
	pretty      bool
}

// scrubResult is what the command prints.
type scrubResult struct {
	Transcript       []transcript.Turn `json:"transcript"`
	AnonymisationLog redaction.Log     `json:"anonymisation_log"`
}

func newRootCommand() *cobra.Command {
	var opts scrubOptions

	cmd := &cobra.Command{
		Use:   "scrub [file]",
		Short: "Redact PII from a markdown interview transcript",
		Long: "Reads a transcript from the file argument or stdin, splits it into speaker turns,\n" +
			"applies every detection the scanner marks redacted, and prints the result as JSON.\n" +
			"Detections left pending are listed in the log but not applied.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			detector, err := buildDetector(cmd, opts)
			if err != nil {
				return err
			}
			result, err := scrub(cmd, raw, detector, opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result, opts.pretty)
		},
	}

	cmd.Flags().StringVar(&opts.participant, "participant", "", "participant's real name, replaced with [PARTICIPANT]")
	cmd.Flags().StringVar(&opts.interviewer, "interviewer", "", "interviewer's real name, replaced with [INTERVIEWER]")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", redaction.DefaultAutoRedactThreshold, "confidence at or above which detections are redacted")
	cmd.Flags().BoolVar(&opts.useServices, "use-services", false, "also call the NER sidecar / Bedrock / Redis configured in the environment")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "indent JSON output")

	cmd.AddCommand(newSegmentCommand())
	return cmd
}

func newSegmentCommand() *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "segment [file]",
		Short: "Print the speaker turns of a transcript without redacting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), transcript.Segment(raw), pretty)
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("transcript is not valid UTF-8")
	}
	return string(data), nil
}

func buildDetector(cmd *cobra.Command, opts scrubOptions) (pii.Detector, error) {
	if !opts.useServices {
		return pii.NewPatternDetector(), nil
	}
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewWithWriter(cfg.LogLevel, cmd.ErrOrStderr())
	redisClient := bootstrap.BuildRedisClient(cmd.Context(), cfg, logger, true)
	return bootstrap.BuildDetector(cmd.Context(), cfg, redisClient, logger)
}

func scrub(cmd *cobra.Command, raw string, detector pii.Detector, opts scrubOptions) (*scrubResult, error) {
	turns := transcript.Segment(raw)
	if len(turns) == 0 {
		return nil, fmt.Errorf("no speaker turns found in transcript")
	}

	scanner := redaction.NewScanner(detector,
		redaction.WithThreshold(opts.threshold),
		redaction.WithLogger(logging.NewWithWriter("warn", cmd.ErrOrStderr())),
	)
	detections, err := scanner.Scan(cmd.Context(), turns, redaction.Names{
		Participant: opts.participant,
		Interviewer: opts.interviewer,
	})
	if err != nil {
		return nil, err
	}

	redacted, log, err := redaction.Apply(turns, detections)
	if err != nil {
		return nil, err
	}
	return &scrubResult{Transcript: redacted, AnonymisationLog: log}, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
