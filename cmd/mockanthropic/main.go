package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pagemagic/pagemagic/test/mockanthropic"
)

func main() {
	addr := flag.String("addr", ":8888", "Server address")
	apiKey := flag.String("api-key", "", "Require this x-api-key (any non-empty key when unset)")
	flag.Parse()

	state := mockanthropic.NewState()
	state.SetAPIKey(*apiKey)
	server := mockanthropic.NewServer(state)

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down mock model API...")
		os.Exit(0)
	}()

	log.Printf("Starting mock model API on %s", *addr)
	if err := server.Run(*addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
