package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nema-ac/worminal/internal/access"
	"github.com/nema-ac/worminal/internal/api"
	"github.com/nema-ac/worminal/internal/config"
	"github.com/nema-ac/worminal/internal/identity"
	"github.com/nema-ac/worminal/internal/logger"
	"github.com/nema-ac/worminal/internal/models"
	"github.com/nema-ac/worminal/internal/transport"
)

func main() {
	cfg := config.Load()
	log := logger.For("worminal")

	ids := identity.NewProvider()
	client := api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, ids)

	switch {
	case cfg.Token != "":
		if err := ids.SetToken(cfg.Token); err != nil {
			log.WithError(err).Fatal("invalid WORMINAL_TOKEN")
		}
	case cfg.Username != "":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		token, err := client.Login(ctx, cfg.Username, cfg.Password)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("login failed")
		}
		if err := ids.SetToken(token); err != nil {
			log.WithError(err).Fatal("server returned an invalid token")
		}
		log.WithField("username", cfg.Username).Info("signed in")
	default:
		log.Info("no credentials configured, spectating")
	}

	rt := transport.New(transport.Config{
		URL:            cfg.WSURL,
		ReconnectDelay: cfg.ReconnectDelay,
		MaxReconnects:  cfg.MaxReconnects,
	}, ids)
	rt.OnMessage(func(msg models.Message) {
		marker := ""
		if msg.IsOptimistic {
			marker = " (sending)"
		}
		fmt.Printf("<%s>%s %s\n", msg.Username, marker, msg.Text)
	})
	rt.OnState(func(st models.ConnectionState) {
		log.WithFields(logrus.Fields{
			"status":  st.Status,
			"attempt": st.ReconnectAttempt,
		}).Info("connection state")
		if err := rt.Err(); err != nil {
			log.WithError(err).Error("realtime channel is down, restart to recover")
		}
	})

	coord := access.NewCoordinator(access.Config{
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		SettleDelay:    cfg.SettleDelay,
	}, client, ids, rt)
	coord.OnViewChange(func(view models.AccessView) {
		switch {
		case view.HasAccess:
			log.Info("you hold the Worminal")
		case view.NeedsToClaim:
			log.Info("a session is waiting for you, type /claim")
		case view.ShouldShowPublicView:
			log.Info("spectating")
		default:
			log.Info("no session")
		}
	})

	coord.Start()
	defer coord.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/claim":
			doClaim(coord, cfg, log)
		case line == "/status":
			printStatus(coord, rt)
		default:
			if err := rt.Send(line); err != nil {
				log.WithError(err).Warn("send failed")
			}
		}
	}
}

func doClaim(coord *access.Coordinator, cfg *config.Config, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	session, err := coord.Claim(ctx)
	switch {
	case errors.Is(err, models.ErrAlreadyClaimed):
		fmt.Println("someone else claimed the session first")
	case err != nil:
		log.Warnf("claim failed: %v", err)
	default:
		fmt.Printf("session %s is yours\n", session.ID)
	}
}

func printStatus(coord *access.Coordinator, rt *transport.Transport) {
	view := coord.View()
	st := rt.State()
	fmt.Printf("access=%v claim=%v spectate=%v connection=%s remaining=%ds\n",
		view.HasAccess, view.NeedsToClaim, view.ShouldShowPublicView,
		st.Status, coord.TimeRemaining()/1000)
	if session := coord.Session(); session != nil {
		fmt.Printf("session %s status=%s prompts=%d/%d\n",
			session.ID, session.Status, session.PromptsUsed, session.PromptsLimit)
	}
	if snap := coord.PublicFeed().Snapshot(); snap != nil {
		fmt.Printf("watching %s drive %s (%d messages)\n",
			snap.User, snap.Nema.Name, len(snap.Nema.Messages))
	}
}
