// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/alan-mat/docqa/internal/config"
	"github.com/alan-mat/docqa/internal/session"
	"github.com/alan-mat/docqa/internal/tasks"
	"github.com/alan-mat/docqa/server"
	"github.com/alan-mat/docqa/worker"
)

const (
	ProgramName   = "docqa"
	Version       = "v0.1.0"
	RepositoryUrl = "github.com/alan-mat/docqa"
)

type serveCmd struct{}

type workerCmd struct{}

type indexCmd struct {
	Session   string `arg:"--session,-s,required" help:"session id to index the document into"`
	ChunkSize int    `arg:"--chunk-size,-c" help:"chunk size in characters (500-10000)"`
	File      string `arg:"positional,required" help:"path to the PDF file"`
}

type askCmd struct {
	Session  string   `arg:"--session,-s,required" help:"session id holding a processed document"`
	Question []string `arg:"positional,required" help:"question to ask"`
}

type args struct {
	Config string `arg:"--config,-C" default:"docqa.yaml" help:"path to the config file"`

	Server *serveCmd  `arg:"subcommand:serve" help:"start the HTTP server and web page"`
	Worker *workerCmd `arg:"subcommand:work" help:"start the background indexing worker"`
	Index  *indexCmd  `arg:"subcommand:index" help:"index a local PDF into a session"`
	Ask    *askCmd    `arg:"subcommand:ask" help:"ask a question about the document of a session"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", ProgramName, Version)
}

func (args) Epilogue() string {
	return fmt.Sprintf("For more information visit %s", RepositoryUrl)
}

func main() {
	var args args

	p, err := arg.NewParser(arg.Config{Program: ProgramName}, &args)
	if err != nil {
		log.Fatalf("there was an error in the definition of the Go struct: %v", err)
	}
	p.MustParse(os.Args[1:])

	if p.Subcommand() == nil {
		p.WriteUsage(os.Stdout)
		os.Exit(0)
	}

	conf, err := config.Read(args.Config)
	if err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	level, _ := config.ParseLogLevel(conf.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cmd func(context.Context, *config.Config, any) error

	switch p.Subcommand().(type) {
	case *serveCmd:
		cmd = startServer
	case *workerCmd:
		cmd = startWorker
	case *indexCmd:
		cmd = indexDocument
	case *askCmd:
		cmd = askQuestion
	default:
		p.FailSubcommand("unrecognized command", p.SubcommandNames()...)
	}

	if err := cmd(ctx, conf, p.Subcommand()); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func startServer(ctx context.Context, conf *config.Config, _ any) error {
	a, err := newApp(ctx, conf)
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher, client := a.dispatcher()
	if client != nil {
		defer client.Close()
	}

	srv := server.New(server.ServerConfig{
		ListenAddr:        conf.ListenAddr(),
		MaxUploadBytes:    conf.Server.MaxUploadBytes,
		RequestsPerSecond: conf.Server.RequestsPerSecond,
		Burst:             conf.Server.Burst,
		AllowedOrigins:    conf.Server.AllowedOrigins,
		DefaultChunkSize:  conf.Ingest.ChunkSize,
	}, a.qa, dispatcher, a.transport)
	return srv.Serve(ctx)
}

func startWorker(ctx context.Context, conf *config.Config, _ any) error {
	if conf.Queue.Mode != config.QueueModeAsynq {
		return fmt.Errorf("worker requires queue mode '%s', got '%s'", config.QueueModeAsynq, conf.Queue.Mode)
	}

	a, err := newApp(ctx, conf)
	if err != nil {
		return err
	}
	defer a.Close()

	w := worker.New(a.rdb, worker.WorkerConfig{
		Concurrency: conf.Worker.Workers,
		Queue:       conf.Queue.Name,
	}, tasks.NewTaskHandler(a.runner()))
	return w.Start()
}

func indexDocument(ctx context.Context, conf *config.Config, sub any) error {
	cmd := sub.(*indexCmd)

	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return err
	}

	chunkSize := cmd.ChunkSize
	if chunkSize == 0 {
		chunkSize = conf.Ingest.ChunkSize
	}

	a, err := newApp(ctx, conf)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.qa.Process(ctx, cmd.Session, filepath.Base(cmd.File), data, chunkSize)
	if err != nil {
		return err
	}

	fmt.Printf("indexed %s: %d pages, %d chunks into collection %s\n",
		sess.Document, sess.Pages, sess.Chunks, sess.Collection)
	return nil
}

func askQuestion(ctx context.Context, conf *config.Config, sub any) error {
	cmd := sub.(*askCmd)

	a, err := newApp(ctx, conf)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.qa.Ask(ctx, cmd.Session, strings.Join(cmd.Question, " "))
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	fmt.Println()
	fmt.Println("Sources:")
	for _, s := range answer.SourceLabels() {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Println()

	history, err := a.qa.History(ctx, cmd.Session)
	if err == nil && len(history) > 1 {
		fmt.Print(session.RenderHistory(history[1:]))
	}
	return nil
}
