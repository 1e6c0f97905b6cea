// Command seed_handler writes a sample JavaScript event handler and verifies
// it compiles, so busdemo's DEMO_SCRIPT flag has something to point at.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/coachpo/hookbus/pkg/script"
)

const sampleSource = `// Logs every order it sees and keeps a running count.
var seen = 0;

exports.onEvent = function (topic, data) {
    seen++;
    if (seen % 10 === 0) {
        log("observed " + seen + " events on " + topic);
    }
};
`

type summary struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Hash string `json:"hash"`
	Size int    `json:"size"`
}

func main() {
	out := flag.String("out", "handler.js", "Path for the generated handler")
	flag.Parse()

	target := filepath.Clean(*out)
	if err := os.WriteFile(target, []byte(sampleSource), 0o644); err != nil {
		fatal(fmt.Errorf("write %s: %w", target, err))
	}

	handler, err := script.Compile(filepath.Base(target), sampleSource)
	if err != nil {
		fatal(fmt.Errorf("generated handler does not compile: %w", err))
	}

	sum := sha256.Sum256([]byte(sampleSource))
	line, err := json.Marshal(summary{
		Path: target,
		Name: handler.Name(),
		Hash: hex.EncodeToString(sum[:]),
		Size: len(sampleSource),
	})
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(line))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
