// Package presence mirrors room membership into Redis so operators and
// sibling instances can observe who is where. Every operation degrades
// gracefully: with no Redis configured the service is a no-op, and a
// tripped circuit breaker drops updates instead of stalling rooms.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/driftlab/roomrelay/internal/v1/metrics"
)

// Event is the payload published to a room's presence channel.
type Event struct {
	RoomID   string `json:"roomId"`
	Event    string `json:"event"` // "player_joined", "player_left", "room_closed"
	PlayerID string `json:"playerId,omitempty"`
}

// Service handles all interaction with the Redis cluster.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService creates a robust Redis connection with automatic retries.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0, // Default DB
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Ping to verify connection immediately
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis presence mirror", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// membersKey is the set of player ids currently in a room.
// Key schema: "relay:room:{id}:members"
func membersKey(roomID string) string {
	return fmt.Sprintf("relay:room:%s:members", roomID)
}

// channel is the pub/sub channel carrying a room's presence events.
// Channel schema: "relay:room:{id}"
func channel(roomID string) string {
	return fmt.Sprintf("relay:room:%s", roomID)
}

// PlayerJoined records a join in the room's member set and announces it.
func (s *Service) PlayerJoined(ctx context.Context, roomID, playerID string) {
	if s == nil || s.client == nil {
		return // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		if err := s.client.SAdd(ctx, membersKey(roomID), playerID).Err(); err != nil {
			return nil, err
		}
		return nil, s.publish(ctx, Event{RoomID: roomID, Event: "player_joined", PlayerID: playerID})
	})
	if err != nil {
		s.reportFailure("player_joined", roomID, err)
	}
}

// PlayerLeft removes the player from the room's member set and announces it.
func (s *Service) PlayerLeft(ctx context.Context, roomID, playerID string) {
	if s == nil || s.client == nil {
		return // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		if err := s.client.SRem(ctx, membersKey(roomID), playerID).Err(); err != nil {
			return nil, err
		}
		return nil, s.publish(ctx, Event{RoomID: roomID, Event: "player_left", PlayerID: playerID})
	})
	if err != nil {
		s.reportFailure("player_left", roomID, err)
	}
}

// RoomClosed deletes the room's member set and announces the closure.
func (s *Service) RoomClosed(ctx context.Context, roomID string) {
	if s == nil || s.client == nil {
		return // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		if err := s.client.Del(ctx, membersKey(roomID)).Err(); err != nil {
			return nil, err
		}
		return nil, s.publish(ctx, Event{RoomID: roomID, Event: "room_closed"})
	})
	if err != nil {
		s.reportFailure("room_closed", roomID, err)
	}
}

func (s *Service) publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}
	return s.client.Publish(ctx, channel(ev.RoomID), data).Err()
}

func (s *Service) reportFailure(op, roomID string, err error) {
	metrics.PresenceFailures.WithLabelValues(op).Inc()
	if err == gobreaker.ErrOpenState {
		slog.Warn("Redis Circuit Breaker Open: dropping presence update", "op", op, "roomID", roomID)
		return // Graceful degradation: drop update, don't crash caller
	}
	slog.Error("Redis presence update failed", "op", op, "roomID", roomID, "error", err)
}

// RoomMembers retrieves the mirrored member set for a room.
func (s *Service) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, nil // Single-instance mode, no Redis available
	}

	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.SMembers(ctx, membersKey(roomID)).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			slog.Warn("Redis Circuit Breaker Open: returning empty member set", "roomID", roomID)
			return nil, nil // Graceful degradation
		}
		return nil, fmt.Errorf("failed to get room members: %w", err)
	}
	return res.([]string), nil
}

// Subscribe starts a background goroutine delivering another instance's
// presence events for roomID to handler until ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, roomID string, handler func(Event)) {
	if s == nil || s.client == nil {
		return // Single-instance mode, no Redis available
	}

	pubsub := s.client.Subscribe(ctx, channel(roomID))

	go func() {
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("Redis subscription channel closed", "roomID", roomID)
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Error("Failed to unmarshal presence event", "error", err, "raw", msg.Payload)
					continue
				}
				handler(ev)
			}
		}
	}()
}

// Ping checks Redis connectivity using the PING command
// Used by health checks to verify Redis is reachable
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	return err
}

// Close gracefully shuts down the Redis connection
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}
	return s.client.Close()
}
