// Command authorize issues one browser upload authorization from the server
// configuration, prints it as JSON and optionally performs the POST itself.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/tendant/direct-upload/pkg/directupload"
	"github.com/tendant/direct-upload/pkg/directupload/config"
	"github.com/tendant/direct-upload/pkg/directupload/form"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment")
	directory := flag.String("directory", "", "upload directory; a new random directory is created when empty")
	filePath := flag.String("file", "", "file to upload with the issued authorization")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	usage := flag.Bool("usage", false, "print the recognised environment variables and exit")
	flag.Parse()

	if *usage {
		fmt.Print(config.Usage())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger, *envFile, *directory, *filePath, *timeout); err != nil {
		logger.Error("authorize failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, envFile, directory, filePath string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := config.LoadFromEnv(envFile)
	if err != nil {
		return err
	}
	rt, err := cfg.Build(ctx, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Service.Start(ctx); err != nil {
		return err
	}

	var auth *directupload.UploadAuthorization
	if directory == "" {
		auth, err = rt.Service.AuthorizeNewDirectory(ctx)
	} else {
		auth, err = rt.Service.Authorize(ctx, directupload.AuthorizeRequest{Directory: directory})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(auth); err != nil {
		return err
	}

	if filePath == "" {
		return nil
	}
	return upload(ctx, logger, auth, filePath)
}

func upload(ctx context.Context, logger *slog.Logger, auth *directupload.UploadAuthorization, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	filename := filepath.Base(filePath)
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	client := form.NewClient(form.WithRetry(3, time.Second))
	if err := client.Upload(ctx, auth, filename, contentType, f); err != nil {
		return err
	}
	logger.Info("file uploaded", "object_key", auth.ObjectKey+filename, "content_type", contentType)
	return nil
}
