package service_test

import (
	"cardofun_backend/internal/service"
	"sync"
)

type notification struct {
	userID uint
	msg    service.WSMessage
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) Notify(userID uint, msg service.WSMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{userID, msg})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.events...)
}
