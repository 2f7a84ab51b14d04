package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"angelvoice/internal/config"
	"angelvoice/internal/domain"
	"angelvoice/internal/wakeword"
)

type scoreOptions struct {
	wakeWord     string
	threshold    float64
	raw          float64
	resultIndex  int
	alternatives []string
}

// scoreReport is how the coordinator would judge one final result in wake
// word mode.
type scoreReport struct {
	Transcript string
	WakeWord   string
	Candidate  bool
	Match      bool
	Confidence float64
	Threshold  float64
	Effective  float64
	Accepted   bool
}

func newScoreCmd(root *rootOptions) *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score <transcript>",
		Short: "Show how a transcript would be scored against the wake word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			report := scoreTranscript(cfg, *opts, cmd.Flags().Changed("threshold"), args[0])
			printScore(cmd, report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.wakeWord, "wake-word", "w", "", "wake word (default from config)")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", 0, "confidence threshold (default from config)")
	cmd.Flags().Float64Var(&opts.raw, "raw", 0, "engine confidence; zero selects heuristic correction")
	cmd.Flags().IntVar(&opts.resultIndex, "index", 0, "result index within the recognition event")
	cmd.Flags().StringSliceVarP(&opts.alternatives, "alt", "a", nil, "additional recognition alternatives")
	return cmd
}

func scoreTranscript(cfg *config.Config, opts scoreOptions, thresholdSet bool, transcript string) scoreReport {
	word := cfg.Voice.WakeWord
	variants := cfg.Voice.Variants
	if opts.wakeWord != "" && !strings.EqualFold(opts.wakeWord, word) {
		word = opts.wakeWord
		variants = nil
	}
	threshold := cfg.Voice.ConfidenceThreshold
	if thresholdSet {
		threshold = opts.threshold
	}

	matcher := wakeword.NewMatcher(word, variants, cfg.Heuristics.FuzzyMatch)
	transcript = strings.TrimSpace(transcript)

	alternatives := []domain.Alternative{{Transcript: transcript, Confidence: opts.raw}}
	for _, alt := range opts.alternatives {
		alternatives = append(alternatives, domain.Alternative{Transcript: alt})
	}

	candidate := matcher.IsCandidate(transcript)
	confidence := cfg.Heuristics.Resolve(opts.raw, wakeword.Evidence{
		Transcript:         transcript,
		Alternatives:       alternatives,
		ResultIndex:        opts.resultIndex,
		Candidate:          candidate,
		SinceLastDetection: -1,
	})
	effective := cfg.Heuristics.EffectiveThreshold(threshold, candidate)
	match := matcher.Contains(transcript)

	return scoreReport{
		Transcript: transcript,
		WakeWord:   matcher.Word(),
		Candidate:  candidate,
		Match:      match,
		Confidence: confidence,
		Threshold:  threshold,
		Effective:  effective,
		Accepted:   transcript != "" && match && confidence >= effective,
	}
}

func printScore(cmd *cobra.Command, r scoreReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "transcript: %q\n", r.Transcript)
	fmt.Fprintf(out, "wake word:  %s\n", r.WakeWord)
	fmt.Fprintf(out, "candidate:  %t\n", r.Candidate)
	fmt.Fprintf(out, "match:      %t\n", r.Match)
	fmt.Fprintf(out, "confidence: %.2f\n", r.Confidence)
	fmt.Fprintf(out, "threshold:  %.2f (effective %.2f)\n", r.Threshold, r.Effective)
	fmt.Fprintf(out, "accepted:   %t\n", r.Accepted)
}
