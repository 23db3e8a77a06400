package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nego/internal/events"
	"github.com/alfredjeanlab/nego/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream session lifecycle events",
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		session, _ := cmd.Flags().GetString("session")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		emit := func(topic string, data []byte) {
			if session != "" && eventTag(data) != session {
				return
			}
			if jsonOutput {
				fmt.Printf("{\"topic\":%q,\"event\":%s}\n", topic, data)
				return
			}
			fmt.Printf("%s %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), formatEvent(topic, data))
		}

		if natsURL != "" {
			return watchNATS(ctx, natsURL, emit)
		}
		streamURL := strings.TrimRight(httpURL, "/") + "/v1/events/stream"
		if session != "" {
			streamURL += "?session=" + url.QueryEscape(session)
		}
		return watchSSE(ctx, streamURL, authToken, emit)
	},
}

// watchNATS follows every lifecycle topic on the bus.
func watchNATS(ctx context.Context, natsURL string, emit func(topic string, data []byte)) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("nego.>")
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			emit(env.Topic, env.Data)
		}
	}
}

// watchSSE follows the server's event stream.
func watchSSE(ctx context.Context, streamURL, token string, emit func(topic string, data []byte)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opening event stream: HTTP %d", resp.StatusCode)
	}

	if err := readSSE(resp.Body, emit); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

// readSSE parses "event:" and "data:" fields, calling fn at each blank-line
// event boundary. Comment lines are skipped.
func readSSE(r io.Reader, fn func(topic string, data []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var topic string
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if topic != "" || data != nil {
				fn(topic, data)
			}
			topic, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			topic = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")...)
		}
	}
	return scanner.Err()
}

// eventTag returns the session tag carried by an event payload.
func eventTag(data []byte) string {
	var e struct {
		Tag string `json:"tag"`
	}
	_ = json.Unmarshal(data, &e)
	return e.Tag
}

// formatEvent renders one lifecycle event as a single line. Unknown topics
// and undecodable payloads print raw.
func formatEvent(topic string, data []byte) string {
	head := ui.RenderAccent(topic)
	raw := head + " " + string(data)

	switch topic {
	case events.TopicSessionStarted:
		var e events.SessionStarted
		if json.Unmarshal(data, &e) != nil {
			return raw
		}
		return fmt.Sprintf("%s %s participants=%s", head, e.Tag, strings.Join(e.Participants, ","))
	case events.TopicSessionDealSubmitted:
		var e events.DealSubmitted
		if json.Unmarshal(data, &e) != nil {
			return raw
		}
		return fmt.Sprintf("%s %s by %s: %s", head, e.Tag, e.SenderID, formatDeal(e.Deal))
	case events.TopicSessionFinished:
		var e events.SessionFinished
		if json.Unmarshal(data, &e) != nil {
			return raw
		}
		line := fmt.Sprintf("%s %s %s turns=%d", head, e.Tag, ui.RenderCompleted(e.Completed), e.TurnCount)
		if len(e.Departed) > 0 {
			line += " departed=" + strings.Join(e.Departed, ",")
		}
		return line
	case events.TopicParticipantDeparted:
		var e events.ParticipantDeparted
		if json.Unmarshal(data, &e) != nil {
			return raw
		}
		return fmt.Sprintf("%s %s %s", head, e.Tag, e.ParticipantID)
	case events.TopicPaymentBonusPaid:
		var e events.BonusPaid
		if json.Unmarshal(data, &e) != nil {
			return raw
		}
		return fmt.Sprintf("%s %s worker=%s amount=%s", head, e.Tag, e.WorkerID, formatMoney(e.Amount))
	case events.TopicWorkerBlocked:
		var e events.WorkerBlocked
		if json.Unmarshal(data, &e) != nil {
			return raw
		}
		return fmt.Sprintf("%s %s worker=%s qualification=%s", head, e.Tag, e.WorkerID, e.Qualification)
	}
	return raw
}

func init() {
	watchCmd.Flags().String("session", "", "only events for this session tag")
	watchCmd.Flags().String("nats-url", os.Getenv("NEGO_NATS_URL"), "NATS server URL (empty = follow the server's SSE stream)")
}
