// internal/images/images.go
//
// Provides the card image pool for the game engine.
//
// Responsibilities:
//   - Load front-image file names from an environment-provided file or fall back to the embedded list.
//   - Pick a random image set for a new game.
//   - Resolve file names into image references: {assetRoot}/set{n}/{file}.
//
// Initialization behavior (Init):
//   1. If IMAGES_FILE is set, load one file name per line from it.
//   2. Otherwise use assets/images.txt.
//
// Environment variables:
//   IMAGES_FILE=/path/to/images.txt
//
// Constraints:
//   • Blank lines and lines starting with '#' are ignored.
//   • Duplicate names are dropped (first occurrence wins).
//   • Initialization is run once (sync.Once).

package images

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/robalobadob/padel-memory/assets"
)

const backFile = "back.png"

var (
	initOnce   sync.Once
	names      []string
	initialErr error
)

// Init loads the pool exactly once.
// Returns an error if the list ends up empty.
func Init() error {
	initOnce.Do(func() {
		var list []string
		var err error
		if p := os.Getenv("IMAGES_FILE"); p != "" {
			list, err = readNameFile(p)
		} else {
			list, err = assets.ImageNames()
		}
		if err != nil {
			initialErr = err
			return
		}
		names = normalize(list)
		if len(names) == 0 {
			initialErr = errors.New("images: pool is empty")
		}
	})
	return initialErr
}

// Names returns the loaded file names.
func Names() []string {
	return append([]string(nil), names...)
}

// readNameFile loads one file name per line.
func readNameFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}

// normalize trims, drops blanks/comments, and de-duplicates.
func normalize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	var out []string
	for _, line := range list {
		n := strings.TrimSpace(line)
		if n == "" || strings.HasPrefix(n, "#") {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// RandomSet returns a cryptographically random set index in 1..sets.
// Fewer than one set means set 1.
func RandomSet(sets int) int {
	if sets <= 1 {
		return 1
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(sets)))
	if err != nil {
		return 1
	}
	return int(n.Int64()) + 1
}

// Resolve maps file names to image references inside set.
func Resolve(root string, set int, files []string) []string {
	dir := path.Join(root, fmt.Sprintf("set%d", set))
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, path.Join(dir, f))
	}
	return out
}

// Back is the card-back image reference.
func Back(root string) string {
	return path.Join(root, backFile)
}

// Deal picks a random set among sets and returns it with the resolved pool.
func Deal(root string, sets int) (int, []string) {
	set := RandomSet(sets)
	return set, Resolve(root, set, Names())
}

// Stats returns the number of loaded file names.
func Stats() int {
	return len(names)
}
