package uasset

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// AssetGroup is a primary package file (.uasset/.umap, or the single Zen
// package chunk for an IoStore entry) together with its companion payload
// files (.uexp, .ubulk) found alongside it in the same container.
type AssetGroup struct {
	PackagePath string
	Primary     Entry
	Companions  []Entry

	meta *AssetMetadata
}

// Metadata returns the group's parsed header, or nil if PreloadAllMetadata
// has not yet run or could not parse this group's header.
func (g *AssetGroup) Metadata() *AssetMetadata { return g.meta }

// AssetRegistry indexes every asset group across a set of mounted
// containers, preloads their headers in parallel, and resolves
// cross-package export references via a two-pass fixpoint: pass one parses
// every group's own header, pass two resolves each export's class/super/
// template pointer, using the now-complete set of public-export-hash
// indices to jump into other packages. Grounded on the teacher's
// jobs-channel/WaitGroup directory walker (cmd/dump.go), generalized to a
// bounded worker pool via errgroup. A single package's header failing to
// parse is logged and skipped (mirroring the teacher's own per-directory
// recoverable-error handling in pe.go) rather than aborting the whole
// preload.
type AssetRegistry struct {
	containers map[string]*MountedContainer
	containerBlocks map[string][]CompressionBlock // IoStore containers only, keyed by container path
	codecs     *Codecs
	scriptObjects *ScriptObjectIndex
	aesKey     []byte

	groups []*AssetGroup

	mu                  sync.RWMutex
	exportIndex         map[string]*exportRef // "packagePath.exportName" -> ref
	exportNameIndex     map[string][]*exportRef
	publicExportHashIndex map[uint64]*exportRef

	resolveCache *lru.Cache[string, *ResolvedReference]

	logger *log.Helper
}

type exportRef struct {
	group       *AssetGroup
	export      *AssetExport
	exportIndex int32
}

// NewAssetRegistry constructs an empty registry over the given mounted
// containers, grouping entries into primary+companion AssetGroups.
// Entries whose primary file is missing (a .uexp with no matching .uasset)
// are dropped; there is nothing to attach them to.
func NewAssetRegistry(containers []*MountedContainer, entries []Entry, containerBlocks map[string][]CompressionBlock, codecs *Codecs, scriptObjects *ScriptObjectIndex, aesKey []byte, logger log.Logger) *AssetRegistry {
	byContainer := make(map[string]*MountedContainer, len(containers))
	for _, c := range containers {
		byContainer[c.Path()] = c
	}
	if containerBlocks == nil {
		containerBlocks = make(map[string][]CompressionBlock)
	}
	if logger == nil {
		logger = log.NewFilter(log.NewStdLogger(os.Stdout), log.FilterLevel(log.LevelWarn))
	}

	cache, _ := lru.New[string, *ResolvedReference](4096)

	reg := &AssetRegistry{
		containers:            byContainer,
		containerBlocks:       containerBlocks,
		codecs:                codecs,
		scriptObjects:         scriptObjects,
		aesKey:                aesKey,
		exportIndex:           make(map[string]*exportRef),
		exportNameIndex:       make(map[string][]*exportRef),
		publicExportHashIndex: make(map[uint64]*exportRef),
		resolveCache:          cache,
		logger:                log.NewHelper(logger),
	}
	reg.groups = groupEntries(entries)
	return reg
}

// groupEntries partitions entries by their stripped package path, pairing
// each primary file with its companions. Orphan companions (no primary in
// the same package path) are dropped.
func groupEntries(entries []Entry) []*AssetGroup {
	byPath := make(map[string]*AssetGroup)
	var order []string

	for _, e := range entries {
		path := stripAssetExtension(e.LogicalPath)
		ext := extensionOf(e.LogicalPath)
		key := normalizeLogicalPath(path)

		g, ok := byPath[key]
		if !ok {
			g = &AssetGroup{PackagePath: path}
			byPath[key] = g
			order = append(order, key)
		}
		if primaryAssetExtensions[ext] {
			g.Primary = e
		} else {
			g.Companions = append(g.Companions, e)
		}
	}

	groups := make([]*AssetGroup, 0, len(order))
	for _, path := range order {
		g := byPath[path]
		if g.Primary.LogicalPath == "" {
			continue // orphan companions with no primary file
		}
		groups = append(groups, g)
	}
	return groups
}

// Groups returns every asset group known to the registry.
func (reg *AssetRegistry) Groups() []*AssetGroup { return reg.groups }

// PreloadAllMetadata parses every group's package header concurrently,
// bounded by parallelism (CPU count if <= 0), then builds the export
// indices and resolves cross-package references. Safe to call more than
// once; re-running recomputes everything from scratch.
func (reg *AssetRegistry) PreloadAllMetadata(ctx context.Context, parallelism int) error {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, group := range reg.groups {
		group := group
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			meta, err := reg.readMetadata(group)
			if err != nil {
				reg.logger.Warnf("uasset: failed to parse package header for %s: %v", group.PackagePath, err)
				return nil
			}
			group.meta = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	reg.buildExportIndices()
	reg.resolveCache.Purge()
	reg.resolveAllReferences()
	reg.resolveAllImports()
	return nil
}

// readMetadata parses one group's primary file into AssetMetadata, reading
// just enough of the container to decode the header (the whole entry for
// Pak/UAsset, since legacy headers are not length-prefixed up front; the
// IoStore chunk is self-delimiting via its TOC offset/length entry).
func (reg *AssetRegistry) readMetadata(group *AssetGroup) (*AssetMetadata, error) {
	entry := group.Primary
	container, ok := reg.containers[entry.ContainerPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotMounted, entry.ContainerPath)
	}

	stream, err := reg.openStream(container, entry)
	if err != nil {
		return nil, err
	}
	raw, err := stream.ReadAll()
	if err != nil {
		return nil, err
	}

	switch entry.Kind {
	case EntryIoStore:
		resolver := ZenResolver{ScriptObjects: reg.scriptObjects}
		return ParseZenHeader(raw, group.PackagePath, resolver)
	default:
		return ParseUAssetHeader(raw, group.PackagePath)
	}
}

// openStream builds the AssetStream that decodes entry's logical bytes
// out of container, dispatching to the Pak or IoStore block layout.
func (reg *AssetRegistry) openStream(container *MountedContainer, entry Entry) (*AssetStream, error) {
	switch entry.Kind {
	case EntryIoStore:
		blocks := reg.containerBlocks[entry.ContainerPath]
		provider := NewBlockProviderForIoStore(entry, blocks)
		return NewAssetStream(container, provider, reg.codecs, reg.aesKey, 0), nil
	default:
		provider := NewBlockProviderForPak(entry)
		return NewAssetStream(container, provider, reg.codecs, reg.aesKey, entry.Offset), nil
	}
}

// openRead opens a stream over an arbitrary entry (primary or companion),
// for use once a caller already knows which container blocks back it --
// e.g. ReadExportData locating the .uexp companion.
func (reg *AssetRegistry) openRead(entry Entry) (*AssetStream, error) {
	container, ok := reg.containers[entry.ContainerPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotMounted, entry.ContainerPath)
	}
	return reg.openStream(container, entry)
}

// buildExportIndices walks every parsed group's exports, assigning each a
// stable index and recording it under its qualified name, its bare name,
// and (if public) its export hash. First writer wins ties, matching how
// the engine's own asset registry treats duplicate package paths as a
// cook-time error rather than something to merge.
func (reg *AssetRegistry) buildExportIndices() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.exportIndex = make(map[string]*exportRef)
	reg.exportNameIndex = make(map[string][]*exportRef)
	reg.publicExportHashIndex = make(map[uint64]*exportRef)

	for _, group := range reg.groups {
		if group.meta == nil {
			continue
		}
		for i := range group.meta.Exports {
			exp := &group.meta.Exports[i]
			ref := &exportRef{group: group, export: exp, exportIndex: int32(i)}

			key := group.PackagePath + "." + exp.Name
			if _, exists := reg.exportIndex[key]; !exists {
				reg.exportIndex[key] = ref
			}
			reg.exportNameIndex[exp.Name] = append(reg.exportNameIndex[exp.Name], ref)
			if exp.IsPublic {
				if _, exists := reg.publicExportHashIndex[exp.PublicExportHash]; !exists {
					reg.publicExportHashIndex[exp.PublicExportHash] = ref
				}
			}
		}
	}
}

// resolveAllReferences is pass two of the fixpoint: every export's
// class/super/template PackageObjectIndex is turned into a ResolvedReference
// now that the full cross-package export-hash index exists.
func (reg *AssetRegistry) resolveAllReferences() {
	for _, group := range reg.groups {
		if group.meta == nil {
			continue
		}
		for i := range group.meta.Exports {
			exp := &group.meta.Exports[i]
			exp.Class = reg.resolveRef(group, exp.ClassRef)
			exp.Super = reg.resolveRef(group, exp.SuperRef)
			exp.Template = reg.resolveRef(group, exp.TemplateRef)
		}
	}
}

// resolveAllImports is pass two's other half: for every PackageImport-
// variant import, follows ImportedPublicExportHashes[RawHashIdx] into the
// public-export-hash index buildExportIndices just built and fills in the
// import's real Name/ClassName/PackageName, marking it IsResolved. An
// import whose hash isn't present in the loaded set (its target package
// wasn't mounted, or genuinely isn't public) is left in its placeholder
// form with IsResolved still false -- there is nothing further to resolve
// it against.
func (reg *AssetRegistry) resolveAllImports() {
	for _, group := range reg.groups {
		if group.meta == nil {
			continue
		}
		for i := range group.meta.Imports {
			imp := &group.meta.Imports[i]
			if imp.Variant != ImportPackage || imp.IsResolved {
				continue
			}
			if imp.RawHashIdx >= uint32(len(group.meta.ImportedPublicExportHashes)) {
				continue
			}
			hash := group.meta.ImportedPublicExportHashes[imp.RawHashIdx]
			target, ok := reg.ResolveExportByHash(hash)
			if !ok {
				continue
			}
			className := "Class"
			if target.export.Class != nil {
				className = target.export.Class.ClassName
			}
			imp.Name = target.export.Name
			imp.ClassName = className
			imp.PackageName = target.group.PackagePath
			imp.IsResolved = true
		}
	}
}

// resolveRef resolves a single PackageObjectIndex in the context of the
// package that carries it. UAsset's legacy PackageIndex and Zen's
// PackageObjectIndex both use the PackageObjectPackageImport tag, but with
// different payload shapes -- a direct index into this package's own
// Imports table for UAsset, versus a (importedPackageIndex,
// importedPublicExportHashIndex) pair for Zen -- so the two dialects are
// disambiguated by the owning entry's container kind, which in practice
// always matches its header dialect.
func (reg *AssetRegistry) resolveRef(group *AssetGroup, ref PackageObjectIndex) *ResolvedReference {
	if ref.Tag == PackageObjectPackageImport || ref.Tag == PackageObjectScriptImport {
		cacheKey := fmt.Sprintf("%s|%d|%d", group.PackagePath, ref.Tag, ref.Value)
		if cached, ok := reg.resolveCache.Get(cacheKey); ok {
			return cached
		}
		resolved := reg.resolveRefUncached(group, ref)
		reg.resolveCache.Add(cacheKey, resolved)
		return resolved
	}
	return reg.resolveRefUncached(group, ref)
}

// resolveRefUncached does the actual per-tag resolution work that
// resolveRef caches by (package, tag, value) for repeated import targets.
func (reg *AssetRegistry) resolveRefUncached(group *AssetGroup, ref PackageObjectIndex) *ResolvedReference {
	meta := group.meta
	switch ref.Tag {
	case PackageObjectNull:
		return nil

	case PackageObjectExport:
		idx := ref.ExportIndex()
		if idx < 0 || int(idx) >= len(meta.Exports) {
			return nil
		}
		target := &meta.Exports[idx]
		return &ResolvedReference{ClassName: target.Name, Name: target.Name, PackagePath: group.PackagePath, ExportIndex: idx}

	case PackageObjectScriptImport:
		objectName, packagePath, _ := resolveScriptImport(ref.Value, reg.scriptObjects)
		return &ResolvedReference{ClassName: objectName, Name: objectName, PackagePath: packagePath, ExportIndex: -1}

	case PackageObjectPackageImport:
		if group.Primary.Kind == EntryIoStore {
			return reg.resolveZenPackageImport(meta, ref)
		}
		return reg.resolveUAssetImport(meta, ref)

	default:
		return nil
	}
}

func (reg *AssetRegistry) resolveZenPackageImport(meta *AssetMetadata, ref PackageObjectIndex) *ResolvedReference {
	pkgIdx, hashIdx := ref.PackageImportParts()
	packagePath := ""
	if int(pkgIdx) < len(meta.ImportedPackageNames) {
		packagePath = stripAssetExtension(meta.ImportedPackageNames[pkgIdx])
	}
	if int(hashIdx) >= len(meta.ImportedPublicExportHashes) {
		return &ResolvedReference{ClassName: "Class", Name: basePathName(packagePath), PackagePath: packagePath, ExportIndex: -1}
	}
	hash := meta.ImportedPublicExportHashes[hashIdx]
	if target, ok := reg.ResolveExportByHash(hash); ok {
		return &ResolvedReference{ClassName: target.export.Name, Name: target.export.Name, PackagePath: target.group.PackagePath, ExportIndex: target.exportIndex}
	}
	return &ResolvedReference{ClassName: "Class", Name: basePathName(packagePath), PackagePath: packagePath, ExportIndex: -1}
}

func (reg *AssetRegistry) resolveUAssetImport(meta *AssetMetadata, ref PackageObjectIndex) *ResolvedReference {
	idx := int(ref.Value)
	if idx < 0 || idx >= len(meta.Imports) {
		return nil
	}
	imp := meta.Imports[idx]
	return &ResolvedReference{ClassName: imp.ClassName, Name: imp.Name, PackagePath: stripAssetExtension(imp.PackageName), ExportIndex: -1}
}

// ResolveExport looks up an export by its fully qualified
// "packagePath.exportName" path.
func (reg *AssetRegistry) ResolveExport(path string) (*AssetExport, *AssetGroup, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ref, ok := reg.exportIndex[path]
	if !ok {
		return nil, nil, false
	}
	return ref.export, ref.group, true
}

// FindExportsByName returns every export across every package sharing the
// given bare object name.
func (reg *AssetRegistry) FindExportsByName(name string) []*AssetExport {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	refs := reg.exportNameIndex[name]
	out := make([]*AssetExport, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.export)
	}
	return out
}

// ResolveExportByHash looks up a public export by its stable
// FPublicExportHash, used to resolve Zen cross-package references.
func (reg *AssetRegistry) ResolveExportByHash(hash uint64) (*exportRef, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ref, ok := reg.publicExportHashIndex[hash]
	return ref, ok
}

// ReadExportData returns the raw serialized bytes for one export. IoStore
// groups always read from the primary Zen package chunk. Pak/UAsset groups
// read from the primary file whenever the export fits entirely within it
// (serialOffset+serialSize <= primary.Size) -- some cooks inline every
// export in the .uasset itself -- and otherwise fall back to the .uexp
// companion, where split serialization places the export data.
func (reg *AssetRegistry) ReadExportData(group *AssetGroup, export *AssetExport) ([]byte, error) {
	if export.SerialSize == 0 || export.SerialSize > 1<<31-1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidExportSize, export.SerialSize)
	}

	if group.Primary.Kind == EntryIoStore {
		stream, err := reg.openRead(group.Primary)
		if err != nil {
			return nil, err
		}
		offset := int64(export.SerialOffset) - int64(group.meta.CookedHeaderSize)
		if !stream.Seek(offset) {
			return nil, fmt.Errorf("%w: export offset out of range", ErrStreamOverrun)
		}
		buf := make([]byte, export.SerialSize)
		if _, err := readFull(stream, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	if export.SerialOffset+export.SerialSize <= group.Primary.Size {
		stream, err := reg.openRead(group.Primary)
		if err != nil {
			return nil, err
		}
		if !stream.Seek(int64(export.SerialOffset)) {
			return nil, fmt.Errorf("%w: export offset out of range", ErrStreamOverrun)
		}
		buf := make([]byte, export.SerialSize)
		if _, err := readFull(stream, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	companion := findCompanion(group, ".uexp")
	if companion.LogicalPath == "" {
		return nil, ErrMissingCompanion
	}
	stream, err := reg.openRead(companion)
	if err != nil {
		return nil, err
	}
	offset := int64(export.SerialOffset) - int64(group.meta.CookedHeaderSize)
	if offset < 0 {
		offset = int64(export.SerialOffset)
	}
	if !stream.Seek(offset) {
		return nil, fmt.Errorf("%w: export offset out of range", ErrStreamOverrun)
	}
	buf := make([]byte, export.SerialSize)
	if _, err := readFull(stream, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func findCompanion(group *AssetGroup, ext string) Entry {
	for _, c := range group.Companions {
		if extensionOf(c.LogicalPath) == ext {
			return c
		}
	}
	return Entry{}
}

func readFull(stream *AssetStream, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := stream.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("%w: short export read", ErrStreamOverrun)
		}
	}
	return total, nil
}
