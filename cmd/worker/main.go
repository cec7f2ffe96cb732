package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/prompt-playground/internal/config"
	"github.com/suPer8Hu/prompt-playground/internal/db"
	"github.com/suPer8Hu/prompt-playground/internal/runlog"
	"github.com/suPer8Hu/prompt-playground/internal/store/rabbitmq"
)

const (
	maxRetries    = 3
	retryDelay    = 5 * time.Second
	handleTimeout = 10 * time.Second
)

type runInserter interface {
	Insert(ctx context.Context, run *runlog.Run) error
}

type retryPublisher interface {
	Retry(ctx context.Context, body []byte, retries int, delay time.Duration) error
}

func main() {
	cfg := config.Load()
	if cfg.RabbitURL == "" {
		log.Fatalf("RABBIT_URL is required")
	}

	gdb, err := db.Connect(cfg.DBDSN, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	repo := runlog.NewRepo(gdb)
	if err := repo.AutoMigrate(); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	// retries are published through a separate connection
	retrier, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer retrier.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, workerID, repo, retrier, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			select {
			case jobs <- d:
			case <-ctx.Done():
				_ = d.Nack(false, true)
			}
		}
	}
}

// handleDelivery settles one run message. Deliveries still buffered when
// shutdown starts go back to the queue; one already being written finishes
// under its own timeout.
func handleDelivery(ctx context.Context, workerID int, repo runInserter, retrier retryPublisher, d amqp.Delivery) {
	if ctx.Err() != nil {
		_ = d.Nack(false, true)
		return
	}

	var run runlog.Run
	if err := json.Unmarshal(d.Body, &run); err != nil || run.ID == "" {
		log.Printf("worker=%d bad message: %v", workerID, err)
		_ = d.Nack(false, false)
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleTimeout)
	defer cancel()

	start := time.Now()
	err := repo.Insert(wctx, &run)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Printf("worker=%d ack failed run=%s err=%v", workerID, run.ID, err)
		}
		if cost := time.Since(start); cost > 500*time.Millisecond {
			log.Printf("run_timing run=%s insert=%s", run.ID, cost)
		}
		return
	}

	retries := rabbitmq.Retries(d)
	if retries >= maxRetries {
		log.Printf("worker=%d run %s dead-lettered after %d retries err=%v", workerID, run.ID, retries, err)
		_ = d.Nack(false, false)
		return
	}
	if perr := retrier.Retry(wctx, d.Body, retries+1, retryDelay); perr != nil {
		log.Printf("worker=%d run %s retry publish failed err=%v", workerID, run.ID, perr)
		_ = d.Nack(false, false)
		return
	}
	log.Printf("worker=%d run %s insert failed, retry=%d cost=%s err=%v", workerID, run.ID, retries+1, time.Since(start), err)
	_ = d.Ack(false)
}
