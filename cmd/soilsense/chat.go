package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/soilsense/internal/analysis"
	"github.com/srg/soilsense/internal/store"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask follow-up questions about an analysis",
	Long: `Continue the conversation about a stored analysis. Without arguments an
interactive prompt opens against the most recent analysis; pass a question
to get a single answer, or --id to pick an older analysis.`,
	RunE: runChat,
}

var chatID string

func init() {
	chatCmd.Flags().StringVar(&chatID, "id", "", "Analysis to discuss (ID prefix, default newest)")
}

var (
	chatPromptColor = color.New(color.FgGreen, color.Bold)
	chatModelColor  = color.New(color.FgCyan)
)

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	s, err := store.NewStore(historyPath(cfg), logger)
	if err != nil {
		return err
	}
	defer s.Close()

	var rec *store.Record
	if chatID != "" {
		rec, err = findByPrefix(s, chatID)
		if err != nil {
			return err
		}
	} else {
		var ok bool
		rec, ok = s.LatestAnalysis()
		if !ok {
			return fmt.Errorf("no analyses yet; run 'soilsense analyze' first")
		}
	}

	client, err := analysis.NewClient(cmd.Context(), cfg.GeminiAPIKey, cfg.Model, cfg.Language, logger)
	if err != nil {
		return err
	}

	contextJSON, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ask := func(question string) error {
		history := s.ChatHistory(rec.ID)

		answer, err := client.Chat(cmd.Context(), string(contextJSON), history, question)
		if err != nil {
			return err
		}

		if err := s.AppendChat(rec.ID, "user", question); err != nil {
			logger.WithError(err).Warn("Failed to save chat turn")
		}
		if err := s.AppendChat(rec.ID, "model", answer); err != nil {
			logger.WithError(err).Warn("Failed to save chat turn")
		}

		_, _ = chatModelColor.Fprintln(os.Stdout, answer)
		return nil
	}

	// One-shot question from the command line.
	if len(args) > 0 {
		return ask(strings.Join(args, " "))
	}

	fmt.Printf("Discussing analysis %s (score %d). Empty line quits.\n",
		rec.ID[:8], rec.Result.Score)

	// Replay earlier turns so the user sees where they left off.
	for _, msg := range s.ChatHistory(rec.ID) {
		if msg.Role == "user" {
			_, _ = chatPromptColor.Print("you> ")
			fmt.Println(msg.Text)
		} else {
			_, _ = chatModelColor.Fprintln(os.Stdout, msg.Text)
		}
	}

	in := bufio.NewScanner(os.Stdin)
	for {
		_, _ = chatPromptColor.Print("you> ")
		if !in.Scan() {
			break
		}
		question := strings.TrimSpace(in.Text())
		if question == "" {
			break
		}
		if err := ask(question); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		}
	}
	return in.Err()
}
