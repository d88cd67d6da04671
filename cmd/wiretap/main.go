package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Platform bridge host")
	port := flag.Int("port", 5039, "Platform bridge port")
	outDir := flag.String("outdir", "testdata/captures", "Output directory for captures")
	sanitize := flag.String("sanitize", "", "Sanitize a capture file in-place (keeps .bak)")
	flag.Parse()

	if *sanitize != "" {
		if err := sanitizeFile(*sanitize); err != nil {
			fmt.Fprintf(os.Stderr, "sanitize error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("sanitized:", *sanitize)
		return
	}

	if err := capture(*host, *port, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func capture(host string, port int, outDir string) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	fmt.Printf("connecting to %s...\n", addr)

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	filename := filepath.Join(outDir, time.Now().Format("20060102-150405")+".raw")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	fmt.Printf("writing to %s\n", filename)
	fmt.Println("streaming events (ctrl+c to stop)...")

	// The stream is kept byte for byte, CRLFs included.
	n, err := io.Copy(f, conn)
	fmt.Printf("captured %d bytes\n", n)
	return err
}

var (
	imsiPattern   = regexp.MustCompile(`(?m)^(IMSI:[ \t]*)(\d+)`)
	numberPattern = regexp.MustCompile(`(?m)^((?:Address|LineNumber|Number|VoicemailNumber):[ \t]*)(\+?\d{5,})`)
	ipPattern     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
)

func sanitizeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Create backup
	bakPath := path + ".bak"
	if err := os.WriteFile(bakPath, data, 0o644); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	return os.WriteFile(path, sanitizeCapture(data), 0o644)
}

// sanitizeCapture replaces IMSIs and phone numbers with test values. Each
// distinct original maps to the same replacement throughout, so the
// capture still correlates. Short codes such as *86 or 911 are kept.
func sanitizeCapture(data []byte) []byte {
	imsis := map[string]string{}
	numbers := map[string]string{}

	out := imsiPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		parts := imsiPattern.FindSubmatch(m)
		orig := string(parts[2])
		r, ok := imsis[orig]
		if !ok {
			r = fmt.Sprintf("00101%010d", len(imsis)+1)
			imsis[orig] = r
		}
		return append(append([]byte{}, parts[1]...), r...)
	})

	out = numberPattern.ReplaceAllFunc(out, func(m []byte) []byte {
		parts := numberPattern.FindSubmatch(m)
		orig := string(parts[2])
		r, ok := numbers[orig]
		if !ok {
			r = fmt.Sprintf("1555000%04d", len(numbers)+1)
			numbers[orig] = r
		}
		return append(append([]byte{}, parts[1]...), r...)
	})

	return ipPattern.ReplaceAllFunc(out, func(ip []byte) []byte {
		if string(ip) == "127.0.0.1" {
			return ip
		}
		return []byte("10.0.0.1")
	})
}
