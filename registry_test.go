package uasset

import "testing"

func TestGroupEntriesPairsCompanions(t *testing.T) {
	entries := []Entry{
		{LogicalPath: "/Game/Hero.uasset"},
		{LogicalPath: "/Game/Hero.uexp"},
		{LogicalPath: "/Game/Hero.ubulk"},
		{LogicalPath: "/Game/Weapon.umap"},
	}
	groups := groupEntries(entries)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	byPath := make(map[string]*AssetGroup, len(groups))
	for _, g := range groups {
		byPath[g.PackagePath] = g
	}

	hero, ok := byPath["/Game/Hero"]
	if !ok {
		t.Fatal("expected /Game/Hero group")
	}
	if hero.Primary.LogicalPath != "/Game/Hero.uasset" {
		t.Errorf("got primary %q", hero.Primary.LogicalPath)
	}
	if len(hero.Companions) != 2 {
		t.Fatalf("got %d companions, want 2", len(hero.Companions))
	}

	weapon, ok := byPath["/Game/Weapon"]
	if !ok {
		t.Fatal("expected /Game/Weapon group")
	}
	if weapon.Primary.LogicalPath != "/Game/Weapon.umap" {
		t.Errorf("got primary %q", weapon.Primary.LogicalPath)
	}
}

func TestGroupEntriesDropsOrphanCompanions(t *testing.T) {
	entries := []Entry{
		{LogicalPath: "/Game/Orphan.uexp"},
	}
	groups := groupEntries(entries)
	if len(groups) != 0 {
		t.Fatalf("got %d groups, want 0 (orphan companion has no primary)", len(groups))
	}
}

func TestGroupEntriesPreservesDiscoveryOrder(t *testing.T) {
	entries := []Entry{
		{LogicalPath: "/Game/B.uasset"},
		{LogicalPath: "/Game/A.uasset"},
	}
	groups := groupEntries(entries)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].PackagePath != "/Game/B" || groups[1].PackagePath != "/Game/A" {
		t.Fatalf("got order [%s, %s], want first-seen order", groups[0].PackagePath, groups[1].PackagePath)
	}
}

func TestResolveAllImportsResolvesPackageImportByHash(t *testing.T) {
	entries := []Entry{
		{LogicalPath: "/Game/TexturePkg.uasset"},
		{LogicalPath: "/Game/UsingPkg.uasset"},
	}
	reg := NewAssetRegistry(nil, entries, nil, NewCodecs(), NewScriptObjectIndex(), nil, nil)

	var texturePkg, usingPkg *AssetGroup
	for _, g := range reg.Groups() {
		switch g.PackagePath {
		case "/Game/TexturePkg":
			texturePkg = g
		case "/Game/UsingPkg":
			usingPkg = g
		}
	}
	if texturePkg == nil || usingPkg == nil {
		t.Fatal("expected both groups to be present")
	}

	const hash = uint64(0xABCD)
	texturePkg.meta = &AssetMetadata{
		PackageName: "/Game/TexturePkg.uasset",
		Exports: []AssetExport{
			{Name: "T_Hero", IsPublic: true, PublicExportHash: hash},
		},
	}
	usingPkg.meta = &AssetMetadata{
		PackageName:                "/Game/UsingPkg.uasset",
		ImportedPublicExportHashes: []uint64{hash},
		Imports: []AssetImport{
			{Variant: ImportPackage, PackageName: "/Game/TexturePkg", RawHashIdx: 0},
		},
	}

	reg.buildExportIndices()
	reg.resolveAllImports()

	imp := usingPkg.meta.Imports[0]
	if !imp.IsResolved {
		t.Fatal("expected the import to resolve via its public export hash")
	}
	if imp.Name != "T_Hero" {
		t.Errorf("got resolved name %q, want T_Hero", imp.Name)
	}
	if imp.PackageName != "/Game/TexturePkg" {
		t.Errorf("got resolved package %q, want /Game/TexturePkg", imp.PackageName)
	}
}

func TestResolveAllImportsLeavesUnknownHashUnresolved(t *testing.T) {
	entries := []Entry{{LogicalPath: "/Game/UsingPkg.uasset"}}
	reg := NewAssetRegistry(nil, entries, nil, NewCodecs(), NewScriptObjectIndex(), nil, nil)
	group := reg.Groups()[0]
	group.meta = &AssetMetadata{
		ImportedPublicExportHashes: []uint64{0x1234},
		Imports: []AssetImport{
			{Variant: ImportPackage, RawHashIdx: 0},
		},
	}

	reg.buildExportIndices()
	reg.resolveAllImports()

	if group.meta.Imports[0].IsResolved {
		t.Fatal("expected the import to remain unresolved when its hash matches no loaded export")
	}
}

func TestNewAssetRegistryGroupsEntries(t *testing.T) {
	entries := []Entry{
		{LogicalPath: "/Game/Hero.uasset"},
		{LogicalPath: "/Game/Hero.uexp"},
	}
	reg := NewAssetRegistry(nil, entries, nil, NewCodecs(), NewScriptObjectIndex(), nil, nil)
	if len(reg.Groups()) != 1 {
		t.Fatalf("got %d groups, want 1", len(reg.Groups()))
	}
	if reg.Groups()[0].Metadata() != nil {
		t.Fatal("expected nil Metadata before any preload")
	}
}
