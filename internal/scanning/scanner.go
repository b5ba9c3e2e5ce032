package scanning

import "context"

// Scanner turns an uploaded receipt into raw OCR text
type Scanner interface {
	// ScanText reads every line of text on a receipt image or PDF, top to bottom
	ScanText(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close releases any resources held by the scanner
	Close() error
}

// transcribePrompt is shared by the LLM scanners. The parsing engine expects
// plain lines, so the model must not summarize or restructure anything.
const transcribePrompt = `You are an OCR engine reading a photographed retail receipt.

Transcribe every line of printed text exactly as it appears, from top to bottom.

Rules:
- One receipt line per output line, in the original order
- Keep item names, quantities, prices, codes and punctuation exactly as printed
- Keep amounts on the same line as their labels
- Do not translate, summarize, correct or reformat anything
- Do not add commentary, headings or markdown
- If nothing is readable, return an empty response`
