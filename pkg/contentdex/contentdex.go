// Copyright 2024 The Helix Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package contentdex indexes external content: update and DLC packages
// dropped into user-configured directories, outside the installed
// content registry. Indexing is best-effort collateral; unreadable files
// are logged and skipped, never fatal.
package contentdex

import (
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Kind distinguishes indexed content.
type Kind int

const (
	// KindUpdate is a title update, registered under the update title
	// id so the patch layer finds it.
	KindUpdate Kind = iota

	// KindDLC is add-on content.
	KindDLC
)

// Entry is one piece of indexed external content.
type Entry struct {
	TitleID uint64
	Version uint32
	Kind    Kind
	Path    string
}

// Provider receives the committed index. The content manager above
// implements it.
type Provider interface {
	ClearAllEntries()
	AddEntry(e Entry)
}

// updateTitleIDOffset turns a base title id into its update id.
const updateTitleIDOffset = 0x800

// baseTitleID masks the per-variant low bits off a title id.
func baseTitleID(titleID uint64) uint64 {
	return titleID &^ uint64(0xfff)
}

// UpdateTitleID returns the update title id for a base title.
func UpdateTitleID(base uint64) uint64 {
	return baseTitleID(base) | updateTitleIDOffset
}

// Indexer scans external content directories and commits what it finds.
type Indexer struct {
	provider Provider
	log      *logrus.Entry

	mu      sync.Mutex
	updates map[uint64][]Entry // Keyed by base title id.
	dlc     []Entry
}

// NewIndexer returns an indexer committing into provider.
func NewIndexer(provider Provider) *Indexer {
	return &Indexer{
		provider: provider,
		log:      logrus.WithField("subsystem", "contentdex"),
	}
}

// Rebuild drops the current index and rescans. Roots are walked
// concurrently, one worker per root; a failing root is logged and does
// not abort the others.
func (ix *Indexer) Rebuild(updateDirs, dlcDirs []string) {
	ix.mu.Lock()
	ix.updates = make(map[uint64][]Entry)
	ix.dlc = nil
	ix.mu.Unlock()

	var g errgroup.Group
	for _, dir := range updateDirs {
		g.Go(func() error {
			if err := ix.indexRoot(dir, KindUpdate); err != nil {
				ix.log.WithError(err).WithField("dir", dir).Error("update scan failed")
			}
			return nil
		})
	}
	for _, dir := range dlcDirs {
		g.Go(func() error {
			if err := ix.indexRoot(dir, KindDLC); err != nil {
				ix.log.WithError(err).WithField("dir", dir).Error("dlc scan failed")
			}
			return nil
		})
	}
	g.Wait() // Errors are consumed above.

	ix.commit()
}

// indexRoot walks one root. The root may also be a single container
// file.
func (ix *Indexer) indexRoot(root string, kind Kind) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "stat")
	}
	if !info.IsDir() {
		ix.tryIndexFile(root, kind)
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Permission-denied subtrees are skipped, not fatal.
			ix.log.WithError(err).WithField("path", path).Debug("skipping")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ix.tryIndexFile(path, kind)
		return nil
	})
}

// tryIndexFile probes a file by extension and parses what matches.
func (ix *Indexer) tryIndexFile(path string, kind Kind) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".nsp"):
		if err := ix.parseContainer(path, kind); err != nil {
			ix.log.WithError(err).WithField("path", path).Warn("container parse failed")
		}
	case strings.HasSuffix(lower, ".cnmt.nca"):
		if err := ix.parseLooseMeta(path, kind); err != nil {
			ix.log.WithError(err).WithField("path", path).Warn("loose meta parse failed")
		}
	}
}

// containerMagic is the submission package header magic.
var containerMagic = [4]byte{'P', 'F', 'S', '0'}

// containerHeader is the fixed header of a submission package.
type containerHeader struct {
	Magic      [4]byte
	EntryCount uint32
	StringSize uint32
	_          uint32
}

// parseContainer validates a submission package and records its title.
// Full content-archive parsing belongs to the loader; the index only
// needs identity, which rides in the file name for external drops
// (16 hex digits of title id, optionally "_vNNN").
func (ix *Indexer) parseContainer(path string, kind Kind) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer f.Close()

	var hdr containerHeader
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "reading header")
	}
	if hdr.Magic != containerMagic {
		return errors.New("bad container magic")
	}
	if hdr.EntryCount == 0 {
		return errors.New("empty container")
	}

	titleID, version, err := identityFromName(path)
	if err != nil {
		return err
	}
	ix.add(Entry{TitleID: titleID, Version: version, Kind: kind, Path: path})
	return nil
}

// metaHeader is the head of a packaged content-metadata record.
type metaHeader struct {
	TitleID uint64
	Version uint32
	Type    uint8
	_       [3]byte
}

// parseLooseMeta indexes a loose metadata file sitting next to its
// content.
func (ix *Indexer) parseLooseMeta(path string, kind Kind) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer f.Close()

	var hdr metaHeader
	if err := binary.Read(io.LimitReader(f, 16), binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "reading meta header")
	}
	if hdr.TitleID == 0 {
		return errors.New("zero title id")
	}
	ix.add(Entry{TitleID: hdr.TitleID, Version: hdr.Version, Kind: kind, Path: filepath.Dir(path)})
	return nil
}

// identityFromName extracts "<16 hex>[_vNNN]" from a file name.
func identityFromName(path string) (titleID uint64, version uint32, err error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id := name
	if i := strings.IndexByte(name, '_'); i >= 0 {
		id = name[:i]
		if v, ok := strings.CutPrefix(name[i+1:], "v"); ok {
			n, perr := strconv.ParseUint(v, 10, 32)
			if perr != nil {
				return 0, 0, errors.Wrap(perr, "parsing version")
			}
			version = uint32(n)
		}
	}
	if len(id) != 16 {
		return 0, 0, errors.Errorf("file name %q carries no title id", name)
	}
	titleID, err = strconv.ParseUint(id, 16, 64)
	return titleID, version, errors.Wrap(err, "parsing title id")
}

func (ix *Indexer) add(e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e.Kind == KindUpdate {
		base := baseTitleID(e.TitleID)
		e.TitleID = UpdateTitleID(base)
		ix.updates[base] = append(ix.updates[base], e)
		return
	}
	ix.dlc = append(ix.dlc, e)
}

// commit publishes the highest update version per title plus all DLC.
func (ix *Indexer) commit() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.provider.ClearAllEntries()
	for _, candidates := range ix.updates {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.Version > best.Version {
				best = c
			}
		}
		ix.provider.AddEntry(best)
	}
	for _, e := range ix.dlc {
		ix.provider.AddEntry(e)
	}
}
