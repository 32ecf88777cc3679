// mkfat32 builds a FAT32 filesystem image from a list of files or a
// YAML build manifest, without calling out to any external formatting
// tool.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/liteos/fatimg/fat32"
	"github.com/liteos/fatimg/humanize"
	"github.com/liteos/fatimg/manifest"
	"github.com/liteos/fatimg/mbr"
	"github.com/liteos/fatimg/progress"
)

type buildConfig struct {
	output       string
	size         string
	label        string
	manifestPath string
	partition    bool
	inputs       []string
}

func main() {
	var cfg buildConfig
	pflag.StringVarP(&cfg.output, "output", "o", "fs.img", "path of the image to write")
	pflag.StringVar(&cfg.size, "size", "", "image size, e.g. 64M (overrides the manifest)")
	pflag.StringVar(&cfg.label, "label", "", "volume label (max 11 characters)")
	pflag.StringVarP(&cfg.manifestPath, "manifest", "m", "", "YAML build manifest")
	pflag.BoolVar(&cfg.partition, "partition", false, "wrap the filesystem in an MBR-partitioned disk image")
	verbose := pflag.Bool("verbose", false, "enable debug logging")
	pflag.Parse()
	cfg.inputs = pflag.Args()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if err := run(afero.NewOsFs(), cfg); err != nil {
		log.Fatal(err)
	}
}

func run(fs afero.Fs, cfg buildConfig) error {
	size := cfg.size
	label := cfg.label
	var files []manifest.File
	if cfg.manifestPath != "" {
		data, err := afero.ReadFile(fs, cfg.manifestPath)
		if err != nil {
			return err
		}
		m, err := manifest.Parse(data)
		if err != nil {
			return err
		}
		if size == "" {
			size = m.Size
		}
		if label == "" {
			label = m.Label
		}
		files = m.Files
	}
	for _, path := range cfg.inputs {
		files = append(files, manifest.File{Path: path})
	}
	if size == "" {
		return fmt.Errorf("no image size given: use --size or a manifest")
	}
	sizeBytes, err := manifest.ParseSize(size)
	if err != nil {
		return err
	}

	opts := []fat32.Option{fat32.WithVolumeID(newVolumeID())}
	if label != "" {
		opts = append(opts, fat32.WithVolumeLabel(label))
	}
	b, err := fat32.New(sizeBytes, opts...)
	if err != nil {
		return err
	}
	geo := b.Geometry()
	log.Debugf("planned geometry: %d sectors, %d per FAT, data region at sector %d",
		geo.TotalSectors, geo.SectorsPerFAT, geo.DataStartSector)

	for _, f := range files {
		data, err := afero.ReadFile(fs, f.Path)
		if err != nil {
			return err
		}
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Path)
		}
		fi, err := fs.Stat(f.Path)
		if err != nil {
			return err
		}
		rec := fat32.FileRecord{Name: name, Data: data, ModTime: fi.ModTime()}
		if err := b.AddFile(rec); err != nil {
			return err
		}
		log.Debugf("added %s (%s)", name, humanize.Bytes(uint64(len(data))))
	}

	out, err := fs.OpenFile(cfg.output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	pw := &progress.Writer{W: out}
	if cfg.partition {
		if err := writePartitioned(pw, b); err != nil {
			return err
		}
	} else if _, err := b.WriteTo(pw); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	log.Infof("wrote %s (%s, %d files) at %s",
		cfg.output, humanize.Bytes(pw.Transferred()), len(files), pw.Rate())
	return nil
}

// writePartitioned prefixes the filesystem with an MBR partition
// table and the alignment gap in front of the first partition.
func writePartitioned(w *progress.Writer, b *fat32.Builder) error {
	geo := b.Geometry()
	table, err := mbr.Configure(geo.TotalSectors)
	if err != nil {
		return err
	}
	if _, err := w.Write(table); err != nil {
		return err
	}
	gap := make([]byte, (mbr.PartitionStartLBA-1)*int(geo.BytesPerSector))
	if _, err := w.Write(gap); err != nil {
		return err
	}
	_, err = b.WriteTo(w)
	return err
}

// newVolumeID derives a volume serial number from a random UUID.
func newVolumeID() uint32 {
	id := uuid.New()
	return binary.LittleEndian.Uint32(id[:4])
}
