package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bobarin/narrator/internal/config"
	"github.com/bobarin/narrator/internal/tts"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSynthesizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Synthesize a text file directly, without the queue",
		RunE:  runSynthesize,
	}
	cmd.Flags().String("text-file", "", "Path to the UTF-8 text to narrate")
	cmd.MarkFlagRequired("text-file")
	cmd.Flags().StringP("language", "l", string(tts.LanguageSpanishES), "Voice language code (e.g. es-ES)")
	cmd.Flags().StringP("speaker", "s", string(tts.SpeakerAchernar), "Chirp 3 HD speaker name")
	cmd.Flags().String("id", "", "Job id naming the output file (default: random UUID)")
	return cmd
}

func runSynthesize(cmd *cobra.Command, _ []string) error {
	textFile, _ := cmd.Flags().GetString("text-file")
	languageFlag, _ := cmd.Flags().GetString("language")
	speakerFlag, _ := cmd.Flags().GetString("speaker")
	jobID, _ := cmd.Flags().GetString("id")

	language, err := tts.ParseLanguage(languageFlag)
	if err != nil {
		return err
	}
	speaker, err := tts.ParseSpeaker(speakerFlag)
	if err != nil {
		return err
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}

	data, err := os.ReadFile(textFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", textFile, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fmt.Errorf("%s is empty", textFile)
	}

	cfg, err := config.LoadSynthesis()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, "synthesize")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator, err := newOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer orchestrator.Wait()

	stream := tts.NewProgressStream()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for p := range stream.Updates() {
			fmt.Fprintf(cmd.ErrOrStderr(), "progress %d%%\n", p)
		}
	}()

	path, err := orchestrator.Synthesize(ctx, tts.Request{
		Text:       text,
		Language:   language,
		Speaker:    speaker,
		JobID:      jobID,
		OnProgress: stream.Report,
	})
	stream.Close()
	<-printed

	if err != nil {
		return fmt.Errorf("%s: %w", tts.Outcome(err), err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
