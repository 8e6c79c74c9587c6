package uasset

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/log"
)

// ContainerFiles names one IoStore container's on-disk pair: the small
// table-of-contents file and the (typically much larger) companion
// holding the actual chunk bytes.
type ContainerFiles struct {
	TocPath string
	CasPath string
}

// Config describes everything a Reader needs to mount: legacy Pak files,
// modern IoStore container pairs, an optional global container carrying
// the engine's script-object table, an optional .usmap-style type schema,
// and the keys/plugins needed to read encrypted or Oodle-compressed
// content.
type Config struct {
	PakFiles        []string
	Containers      []ContainerFiles
	GlobalContainer *ContainerFiles
	UsmapPath       string

	AESKey      []byte
	Oodle       OodleDecompressor
	Parallelism int

	// Logger receives recoverable per-package and per-container warnings.
	// A nil Logger falls back to a stdout logger filtered to warning level
	// and above, matching the teacher's own Options.Logger default.
	Logger log.Logger
}

// Reader is the top-level read-only handle over a set of mounted
// containers: it owns their memory maps, the compiled codec dispatcher,
// the script-object and type registries, and the cross-package asset
// registry built over every entry they expose. Mirrors the teacher's
// pe.New/File construction (file.go/pe.go): Open mounts the containers and
// parses their indices, PreloadAllMetadata parses every package header,
// and per-export property deserialization runs on demand.
type Reader struct {
	containers []*MountedContainer
	codecs     *Codecs
	scriptObjects *ScriptObjectIndex
	registry   *AssetRegistry
	types      *TypeRegistry
	parallelismHint int
	logger     *log.Helper
}

// Open mounts every container named in cfg, parses their indices/TOCs,
// and constructs the cross-package AssetRegistry. It does not itself call
// PreloadAllMetadata -- callers choose when to pay that cost.
func Open(cfg Config) (*Reader, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewFilter(log.NewStdLogger(os.Stdout), log.FilterLevel(log.LevelWarn))
	}
	helper := log.NewHelper(logger)

	codecs := NewCodecs()
	if cfg.Oodle != nil {
		codecs.RegisterOodle(cfg.Oodle)
	}

	scriptObjects := NewScriptObjectIndex()

	var mounted []*MountedContainer
	var entries []Entry
	containerBlocks := make(map[string][]CompressionBlock)

	if cfg.GlobalContainer != nil {
		container, _, blocks, toc, err := mountIoStoreContainer(*cfg.GlobalContainer, cfg.AESKey)
		if err != nil {
			return nil, fmt.Errorf("global container: %w", err)
		}
		mounted = append(mounted, container)
		containerBlocks[container.Path()] = blocks

		if err := loadGlobalScriptObjects(container, toc, codecs, scriptObjects); err != nil {
			return nil, fmt.Errorf("global container: %w", err)
		}
		if scriptObjects.Len() == 0 {
			helper.Warnf("uasset: global container %s carried no ScriptObjects chunk; script imports will not resolve", cfg.GlobalContainer.CasPath)
		}
	}

	for _, pakPath := range cfg.PakFiles {
		container, pakEntries, err := mountPakContainer(pakPath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pakPath, err)
		}
		mounted = append(mounted, container)
		entries = append(entries, pakEntries...)
	}

	for _, cf := range cfg.Containers {
		container, tocEntries, blocks, _, err := mountIoStoreContainer(cf, cfg.AESKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cf.CasPath, err)
		}
		mounted = append(mounted, container)
		containerBlocks[container.Path()] = blocks
		entries = append(entries, tocEntries...)
	}

	registry := NewAssetRegistry(mounted, entries, containerBlocks, codecs, scriptObjects, cfg.AESKey, logger)

	types := NewTypeRegistry(codecs)
	if cfg.UsmapPath != "" {
		raw, err := os.ReadFile(cfg.UsmapPath)
		if err != nil {
			return nil, err
		}
		if err := types.LoadUsmap(raw); err != nil {
			return nil, err
		}
	}
	types.SetAssetTypeResolver(func(assetPath string) (string, bool) {
		exp, _, ok := registry.ResolveExport(assetPath)
		if !ok || exp.Class == nil {
			return "", false
		}
		return exp.Class.ClassName, true
	})

	return &Reader{
		containers:      mounted,
		codecs:          codecs,
		scriptObjects:   scriptObjects,
		registry:        registry,
		types:           types,
		parallelismHint: cfg.Parallelism,
		logger:          helper,
	}, nil
}

func mountPakContainer(path string) (*MountedContainer, []Entry, error) {
	container, err := MountContainer(path)
	if err != nil {
		return nil, nil, err
	}
	footer, err := ParsePakFooter(dataOf(container))
	if err != nil {
		container.Close()
		return nil, nil, err
	}
	indexData, ok := container.ReadAt(footer.IndexOffset, footer.IndexSize)
	if !ok {
		container.Close()
		return nil, nil, fmt.Errorf("%w: pak index out of range", ErrInvalidFormat)
	}
	_, entries, err := ParsePakIndex(indexData, nil, path)
	if err != nil {
		container.Close()
		return nil, nil, err
	}
	return container, entries, nil
}

func mountIoStoreContainer(cf ContainerFiles, aesKey []byte) (*MountedContainer, []Entry, []CompressionBlock, *IoStoreTOC, error) {
	tocRaw, err := os.ReadFile(cf.TocPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	toc, err := ParseIoStoreTOC(tocRaw)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	indexData := toc.DirectoryIndexRaw
	if toc.Header.isEncrypted() && len(indexData) > 0 {
		if len(aesKey) != 32 {
			return nil, nil, nil, nil, fmt.Errorf("%w: encrypted directory index in %s", ErrBadKey, cf.TocPath)
		}
		indexData = append([]byte(nil), indexData...)
		if err := DecryptAES256ECB(indexData, aesKey); err != nil {
			return nil, nil, nil, nil, err
		}
	}

	container, err := MountContainer(cf.CasPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	// A container without a directory index exposes no path-addressed entries.
	var entries []Entry
	if len(indexData) > 0 {
		entries, _, err = ParseDirectoryIndex(indexData, toc.ChunkIDs, toc.ChunkOffsetLengths, cf.CasPath, uint32(toc.Header.CompressionBlockSize))
		if err != nil {
			container.Close()
			return nil, nil, nil, nil, err
		}
	}
	for i := range entries {
		entries[i].IoBlockSize = uint32(toc.Header.CompressionBlockSize)
		entries[i].IoIsEncrypted = toc.Header.isEncrypted()
	}

	return container, entries, toc.CompressionBlocks, toc, nil
}

// loadGlobalScriptObjects locates the ScriptObjects chunk by chunk type
// (it carries no directory-index entry -- it is looked up directly, not
// by path) and decodes it.
func loadGlobalScriptObjects(container *MountedContainer, toc *IoStoreTOC, codecs *Codecs, idx *ScriptObjectIndex) error {
	for i, id := range toc.ChunkIDs {
		if id.Type != IoChunkScriptObjects {
			continue
		}
		ol := toc.ChunkOffsetLengths[i]
		entry := Entry{
			ContainerPath: container.Path(),
			Kind:          EntryIoStore,
			Offset:        ol.Offset,
			Size:          ol.Length,
			IoBlockSize:   uint32(toc.Header.CompressionBlockSize),
			IoIsEncrypted: toc.Header.isEncrypted(),
		}
		if entry.IoBlockSize > 0 {
			entry.IoFirstBlockIndex = int(ol.Offset / uint64(entry.IoBlockSize))
			entry.IoLastBlockIndex = int((ol.Offset + ol.Length - 1) / uint64(entry.IoBlockSize))
		}
		provider := NewBlockProviderForIoStore(entry, toc.CompressionBlocks)
		stream := NewAssetStream(container, provider, codecs, nil, 0)
		raw, err := stream.ReadAll()
		if err != nil {
			return err
		}
		return idx.ParseGlobalScriptObjects(raw)
	}
	return nil
}

func dataOf(c *MountedContainer) []byte {
	b, _ := c.ReadAt(0, uint64(c.Size()))
	return b
}

// PreloadAllMetadata parses every asset group's package header
// concurrently; see AssetRegistry.PreloadAllMetadata.
func (rd *Reader) PreloadAllMetadata(ctx context.Context) error {
	return rd.registry.PreloadAllMetadata(ctx, rd.parallelismHint)
}

// ResolveExport looks up an export by its fully qualified
// "packagePath.exportName" path.
func (rd *Reader) ResolveExport(path string) (*AssetExport, *AssetGroup, bool) {
	return rd.registry.ResolveExport(path)
}

// FindExportsByName returns every export across every package sharing the
// given bare object name.
func (rd *Reader) FindExportsByName(name string) []*AssetExport {
	return rd.registry.FindExportsByName(name)
}

// Groups returns every asset group the reader knows about.
func (rd *Reader) Groups() []*AssetGroup { return rd.registry.Groups() }

// DeserializeExport reads and decodes one export's property bag, choosing
// tagged or unversioned decoding per the owning package's header flag.
func (rd *Reader) DeserializeExport(group *AssetGroup, export *AssetExport) (*PropertyBag, []Diagnostic, error) {
	raw, err := rd.registry.ReadExportData(group, export)
	if err != nil {
		return nil, nil, err
	}
	r := NewArchiveReader(raw)

	className := export.Name
	if export.Class != nil {
		className = export.Class.ClassName
		if className == "" {
			className = export.Class.Name
		}
	}

	var bag *PropertyBag
	var diags []Diagnostic
	if group.Metadata().IsUnversioned {
		bag, diags, err = ReadUnversionedProperties(r, group.Metadata().NameTable, rd.types, className)
	} else {
		bag, diags, err = ReadTaggedProperties(r, group.Metadata().NameTable, rd.types, className)
	}
	if len(diags) > 0 {
		rd.logger.Debugf("uasset: %s.%s: %d property diagnostics recorded", group.PackagePath, export.Name, len(diags))
	}
	return bag, diags, err
}

// Close unmaps and closes every mounted container.
func (rd *Reader) Close() error {
	var firstErr error
	for _, c := range rd.containers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
