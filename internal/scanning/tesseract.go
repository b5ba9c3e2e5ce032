package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const charWhitelist = "tessedit_char_whitelist=0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz.,:-()/$# "

// tesseractConfigs are tried in order; the best scoring output wins
var tesseractConfigs = [][]string{
	{"--oem", "3", "--psm", "6", "-c", charWhitelist},
	{"--oem", "3", "--psm", "4", "-c", charWhitelist},
	{"--oem", "3", "--psm", "6"},
	{"--oem", "3", "--psm", "4"},
	{"--oem", "3", "--psm", "3"},
}

// minUsefulText is the shortest trimmed output accepted from a tuned configuration
const minUsefulText = 50

// TesseractConfig configures the tesseract binary
type TesseractConfig struct {
	Binary      string
	Language    string
	TessdataDir string
	Timeout     time.Duration
}

// Tesseract implements Scanner by shelling out to tesseract
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseract creates a Tesseract scanner that runs the real binary
func NewTesseract(cfg TesseractConfig) *Tesseract {
	return NewTesseractWithRunner(cfg, ExecRunner{})
}

// NewTesseractWithRunner creates a Tesseract scanner with a custom command runner
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// ScanText preprocesses the image and returns the best text across several page segmentation modes
func (t *Tesseract) ScanText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	img, err := decodeImage(imageData, normalizeMimeType(contentType))
	if err != nil {
		return "", err
	}
	pngData, err := encodePNG(preprocessForOCR(img))
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "receipt-ocr-")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "receipt.png")
	if err := os.WriteFile(path, pngData, 0600); err != nil {
		return "", fmt.Errorf("writing preprocessed image: %w", err)
	}

	var (
		best      string
		bestScore float64
	)
	for _, cfg := range tesseractConfigs {
		text, err := t.run(ctx, path, cfg...)
		if err != nil {
			slog.Warn("tesseract configuration failed", "args", strings.Join(cfg, " "), "error", err)
			continue
		}
		score := ocrScore(text)
		if score > bestScore && len(strings.TrimSpace(text)) > minUsefulText {
			best, bestScore = text, score
		}
	}

	if strings.TrimSpace(best) == "" {
		text, err := t.run(ctx, path)
		if err != nil {
			return "", fmt.Errorf("running tesseract: %w", err)
		}
		best = text
	}

	slog.Info("tesseract scan complete", "chars", len(best), "score", bestScore)
	return best, nil
}

func (t *Tesseract) run(ctx context.Context, path string, extra ...string) (string, error) {
	args := []string{path, "stdout", "-l", t.cfg.Language}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, extra...)

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// ocrScore favors long output with few stray symbols
func ocrScore(text string) float64 {
	if text == "" {
		return 0
	}
	noise := strings.Count(text, "!") + strings.Count(text, "@") + strings.Count(text, "#")
	return float64(len(strings.TrimSpace(text))) * (1 - float64(noise)/float64(len(text)))
}

// Close is a no-op
func (t *Tesseract) Close() error {
	return nil
}

func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		return "image/jpeg"
	}
	return mimeType
}
