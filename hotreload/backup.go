package hotreload

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/reedsolomon"
)

// BackupManager snapshots an asset's raw bytes to disk ahead of a reload
// attempt (spec §4.J step 6). It does not restore anything itself: on a
// failed reload the Controller reinstalls the prior in-memory asset, and
// the on-disk backup is read back only through Load (Controller.RestoreFromBackup).
// When parity protection is enabled (AssetManagerConfig.enable_parity_backup,
// SPEC_FULL.md §4.J's domain-stack wiring), it additionally splits the
// backup into `klauspost/reedsolomon` data+parity shards, grounded on
// `reb/ec.go`'s `reedsolomon.NewStreamC` erasure-coding use — the literal
// EC use case (many data shards + parity shards protecting one stored
// object) has no other home in a single-node asset pipeline with no
// network-replicated shards. The shards cover a missing or unreadable
// .bak file; a .bak that is readable but truncated is not detected.
type BackupManager struct {
	dir          string
	parity       bool
	dataShards   int
	parityShards int
}

// NewBackupManager roots backups under dir. dataShards/parityShards are
// only consulted when parity is true; sane defaults (4 data, 2 parity) are
// applied if left zero.
func NewBackupManager(dir string, parity bool, dataShards, parityShards int) *BackupManager {
	if dataShards <= 0 {
		dataShards = 4
	}
	if parityShards <= 0 {
		parityShards = 2
	}
	return &BackupManager{dir: dir, parity: parity, dataShards: dataShards, parityShards: parityShards}
}

func (b *BackupManager) backupPath(key string) string {
	return filepath.Join(b.dir, key+".bak")
}

func (b *BackupManager) shardPath(key string, i int) string {
	return filepath.Join(b.dir, fmt.Sprintf("%s.shard%d", key, i))
}

// Save writes data as the backup for key, plus parity shards if enabled.
func (b *BackupManager) Save(key string, data []byte) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(b.backupPath(key), data, 0o644); err != nil {
		return err
	}
	if !b.parity {
		return nil
	}
	return b.saveParity(key, data)
}

func (b *BackupManager) saveParity(key string, data []byte) error {
	enc, err := reedsolomon.New(b.dataShards, b.parityShards)
	if err != nil {
		return err
	}
	shards, err := enc.Split(data)
	if err != nil {
		return err
	}
	if err := enc.Encode(shards); err != nil {
		return err
	}
	for i, s := range shards {
		if err := os.WriteFile(b.shardPath(key, i), s, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the backup for key. If the primary .bak file cannot be read
// (missing or unreadable) and parity protection is enabled, it reconstructs
// from whatever shards are still present. The .bak contents themselves are
// not checksummed, so a readable but corrupted .bak is returned as is.
func (b *BackupManager) Load(key string, origSize int) ([]byte, error) {
	data, err := os.ReadFile(b.backupPath(key))
	if err == nil {
		return data, nil
	}
	if !b.parity {
		return nil, err
	}
	return b.reconstruct(key, origSize)
}

func (b *BackupManager) reconstruct(key string, origSize int) ([]byte, error) {
	total := b.dataShards + b.parityShards
	shards := make([][]byte, total)
	present := 0
	for i := 0; i < total; i++ {
		data, err := os.ReadFile(b.shardPath(key, i))
		if err != nil {
			continue
		}
		shards[i] = data
		present++
	}
	if present < b.dataShards {
		return nil, fmt.Errorf("hotreload: backup %q unrecoverable: only %d/%d shards present", key, present, b.dataShards)
	}

	enc, err := reedsolomon.New(b.dataShards, b.parityShards)
	if err != nil {
		return nil, err
	}
	if err := enc.Reconstruct(shards); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := enc.Join(&buf, shards, origSize); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Remove drops the backup and any parity shards for key once a reload
// succeeds and the snapshot is no longer needed.
func (b *BackupManager) Remove(key string) {
	_ = os.Remove(b.backupPath(key))
	if !b.parity {
		return
	}
	for i := 0; i < b.dataShards+b.parityShards; i++ {
		_ = os.Remove(b.shardPath(key, i))
	}
}
