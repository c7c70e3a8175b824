package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	router "github.com/dkeye/AvatarCall/internal/adapters/http"
	"github.com/dkeye/AvatarCall/internal/adapters/rtc"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	st := newStack(cfg)

	svc := &router.Services{
		Arbiter:  st.arbiter,
		Feed:     st.feed,
		Session:  st.session,
		Calls:    st.calls,
		PTT:      st.ptt,
		Chat:     st.chat,
		Playback: st.player,
		Limiter:  router.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateInterval),
	}
	if st.results != nil {
		svc.Results = st.results
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(cfg, svc),
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", addr).Msg("AvatarCall control API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	if cfg.Playback.Autostart {
		g.Go(func() error {
			if err := st.player.Start(ctx); err != nil {
				log.Error().Err(err).Str("module", "main").Msg("playback autostart failed")
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Str("module", "main").Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		st.calls.Close(shutdownCtx)
		if err := st.player.Stop(shutdownCtx); err != nil && !errors.Is(err, rtc.ErrNotPlaying) {
			log.Warn().Err(err).Str("module", "main").Msg("stop playback")
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("Server forced to shutdown")
		}
		st.dispatcher.Wait()
		return nil
	})

	err := g.Wait()
	log.Info().Str("module", "main").Msg("Server exited gracefully")
	return err
}
