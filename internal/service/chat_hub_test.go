package service_test

import (
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/repository"
	"cardofun_backend/internal/service"
	"cardofun_backend/internal/testutil"
	"cardofun_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func startHub(t *testing.T, hub *service.ChatHub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	select {
	case <-hub.Ready():
	case <-time.After(waitFor):
		t.Fatal("hub did not start")
	}
}

func session(hub *service.ChatHub, userID uint) *service.Client {
	c := &service.Client{Hub: hub, UserID: userID, Send: make(chan []byte, 8)}
	hub.Register(c)
	return c
}

func receive(t *testing.T, c *service.Client) service.WSMessage {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "session closed")
		var msg service.WSMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(waitFor):
		t.Fatalf("nothing delivered to user %d", c.UserID)
		return service.WSMessage{}
	}
}

func TestHubDeliversToEveryLocalSession(t *testing.T) {
	hub := service.NewChatHub(nil, nil, 8)
	startHub(t, hub)

	phone := session(hub, 2)
	laptop := session(hub, 2)
	bystander := session(hub, 3)

	hub.Notify(2, service.WSMessage{Type: service.EventNewMessage, Data: "hello"})

	for _, c := range []*service.Client{phone, laptop} {
		msg := receive(t, c)
		assert.Equal(t, service.EventNewMessage, msg.Type)
		assert.Equal(t, "hello", msg.Data)
	}
	assert.Empty(t, bystander.Send)
}

func TestHubNotifyWithoutSessionIsDropped(t *testing.T) {
	hub := service.NewChatHub(nil, nil, 8)
	startHub(t, hub)

	hub.Notify(42, service.WSMessage{Type: service.EventNewMessage})
	c := session(hub, 43)
	hub.Notify(43, service.WSMessage{Type: service.EventNewMessage})
	assert.Equal(t, service.EventNewMessage, receive(t, c).Type)
}

func TestHubNotifyNeverBlocksWhenQueueIsFull(t *testing.T) {
	hub := service.NewChatHub(nil, nil, 1)
	dropped := monitoring.IMDeliveriesDropped.WithLabelValues("queue_full")
	before := promtest.ToFloat64(dropped)

	done := make(chan struct{})
	go func() {
		hub.Notify(1, service.WSMessage{Type: service.EventNewMessage})
		hub.Notify(1, service.WSMessage{Type: service.EventNewMessage})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Notify blocked")
	}
	assert.Equal(t, before+1, promtest.ToFloat64(dropped))
}

func TestHubUnregisterClosesSession(t *testing.T) {
	hub := service.NewChatHub(nil, nil, 8)
	c := session(hub, 5)
	assert.True(t, hub.IsUserOnline(context.Background(), 5))

	hub.Unregister(c)
	hub.Unregister(c)

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.False(t, hub.IsUserOnline(context.Background(), 5))
}

func TestHubRelaysTypingToNamedUser(t *testing.T) {
	hub := service.NewChatHub(nil, nil, 8)
	startHub(t, hub)
	target := session(hub, 2)

	hub.HandleTransientEvent(1, service.WSMessage{
		Type: service.EventTyping,
		Data: map[string]interface{}{"targetUserId": float64(2)},
	})

	msg := receive(t, target)
	assert.Equal(t, service.EventTyping, msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, data["userId"])
}

func TestHubFansOutAcrossInstancesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return rdb
	}

	sender := service.NewChatHub(newClient(), nil, 8)
	receiver := service.NewChatHub(newClient(), nil, 8)
	startHub(t, sender)
	startHub(t, receiver)

	c := session(receiver, 7)
	sender.Notify(7, service.WSMessage{Type: service.EventNewMessage, Data: "across"})

	msg := receive(t, c)
	assert.Equal(t, "across", msg.Data)
}

func TestHubDeliversLocallyWhenSubscribeFailed(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return rdb
	}

	mr.SetError("LOADING Redis is loading the dataset in memory")
	degraded := service.NewChatHub(newClient(), nil, 8)
	startHub(t, degraded)
	mr.SetError("")

	healthy := service.NewChatHub(newClient(), nil, 8)
	startHub(t, healthy)

	local := session(degraded, 5)
	remote := session(healthy, 6)

	degraded.Notify(5, service.WSMessage{Type: service.EventNewMessage, Data: "local"})
	msg := receive(t, local)
	assert.Equal(t, service.EventNewMessage, msg.Type)
	assert.Equal(t, "local", msg.Data)

	// publishing still reaches sessions held by subscribed instances
	degraded.Notify(6, service.WSMessage{Type: service.EventNewMessage, Data: "remote"})
	assert.Equal(t, "remote", receive(t, remote).Data)
	assert.Empty(t, local.Send)
}

func TestHubPresenceAndFriendStatus(t *testing.T) {
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	users := testutil.CreateUsers(t, db, 2)
	testutil.CreateFriendRequest(t, db, users[0].ID, users[1].ID, model.FriendshipAccepted)

	hub := service.NewChatHub(rdb, repository.NewFriendshipRepository(db, rdb), 8)
	startHub(t, hub)

	friend := session(hub, users[1].ID)
	session(hub, users[0].ID)

	assert.Eventually(t, func() bool {
		return mr.Exists(fmt.Sprintf("user:online:%d", users[0].ID))
	}, waitFor, 20*time.Millisecond)

	msg := receive(t, friend)
	assert.Equal(t, service.EventUserStatus, msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.EqualValues(t, users[0].ID, data["userId"])
	assert.Equal(t, "online", data["status"])
}
