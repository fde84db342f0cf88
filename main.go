package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"lanchat/chat"
	"lanchat/config"
	"lanchat/discovery"
	"lanchat/dispatch"
	"lanchat/models"
	"lanchat/storage"
	"lanchat/transport"
)

func main() {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		logrus.Fatalf("startup failed while loading config: %v", err)
	}

	fmt.Printf("Device ID:      %s\n", cfg.DeviceID)
	fmt.Printf("Nickname:       %s\n", cfg.Nickname)
	fmt.Printf("Chat Port:      %d\n", cfg.ChatPort)
	fmt.Printf("Config File:    %s\n", cfgPath)
	dataDir := filepath.Dir(cfgPath)
	fmt.Printf("Data Directory: %s\n", dataDir)

	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		logrus.Fatalf("startup failed while opening database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logrus.Errorf("database close error: %v", err)
		}
	}()
	fmt.Printf("Database File:  %s\n", dbPath)

	queue := dispatch.NewQueue(dispatch.DefaultQueueCapacity)

	messenger, err := transport.NewMessenger(transport.Options{
		Port:  cfg.ChatPort,
		Queue: queue,
	})
	if err != nil {
		logrus.Fatalf("startup failed while creating transport: %v", err)
	}
	if err := messenger.Start(); err != nil {
		logrus.Fatalf("startup failed while starting transport: %v", err)
	}
	defer messenger.Stop()

	var detector chat.Detector
	discoveryService, err := discovery.Start(discovery.Config{
		SelfDeviceID: cfg.DeviceID,
		Nickname:     cfg.Nickname,
		GroupLabel:   cfg.GroupLabel,
		ChatPort:     cfg.ChatPort,
		Queue:        queue,
	})
	if err != nil {
		logrus.Errorf("discovery startup failed: %v", err)
	} else {
		defer discoveryService.Stop()
		detector = discoveryService.Scanner
		fmt.Println("Discovery:      running")
	}

	coordinator, err := chat.NewCoordinator(chat.Options{
		Nickname:    cfg.Nickname,
		Transport:   messenger,
		Detector:    detector,
		Store:       store,
		Notifier:    logNotifier{},
		HistoryPage: cfg.HistoryPage,
	})
	if err != nil {
		logrus.Fatalf("startup failed while creating coordinator: %v", err)
	}
	if err := coordinator.RestoreGroups(); err != nil {
		logrus.Errorf("group restore failed: %v", err)
	}
	if known, err := coordinator.KnownPeers(); err != nil {
		logrus.Errorf("known peer load failed: %v", err)
	} else {
		fmt.Printf("Known Peers:    %d\n", len(known))
	}

	loop, err := dispatch.NewLoop(dispatch.LoopOptions{
		Queue:   queue,
		Handler: coordinator.HandleEvent,
	})
	if err != nil {
		logrus.Fatalf("startup failed while creating dispatch loop: %v", err)
	}
	loop.Start()
	defer loop.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Status:         running (press Ctrl+C to stop)")
	<-ctx.Done()
	fmt.Println("Status:         shutting down")
}

// logNotifier surfaces chat activity on the log until a real presentation
// layer is attached.
type logNotifier struct{}

func (logNotifier) PeerUpserted(peer models.Peer) {
	logrus.WithFields(logrus.Fields{
		"ip":   peer.IP,
		"name": peer.Name,
	}).Info("peer available")
}

func (logNotifier) PeerRemoved(ip string) {
	logrus.WithField("ip", ip).Info("peer removed")
}

func (logNotifier) OnlineCountChanged(count int) {
	logrus.WithField("online", count).Info("online peers")
}

func (logNotifier) GroupRegistered(group models.Group) {
	logrus.WithFields(logrus.Fields{
		"group":   group.Name,
		"members": len(group.Members),
	}).Info("group registered")
}

func (logNotifier) SessionOpened(session *models.Session) {
	logrus.WithField("session", session.Key).Info("session opened")
}

func (logNotifier) MessageAppended(sessionKey string, line models.ChatLine) {
	logrus.WithFields(logrus.Fields{
		"session": sessionKey,
		"sender":  line.Sender,
	}).Info("message")
}

func (logNotifier) FileShared(sessionKey, filename string, isSelf bool) {
	logrus.WithFields(logrus.Fields{
		"session": sessionKey,
		"file":    filename,
		"is_self": isSelf,
	}).Info("file shared")
}
