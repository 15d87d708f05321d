package upgrade

import (
	"fmt"
	"hash/crc32"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// p2lEntrySize is the on-media size of one P2L map entry: a bare 8-byte
// logical address. The entry's byte layout never changes across
// versions; only the page's out-of-band version/checksum metadata does,
// matching the original source's upgrade_v0_to_v1 callbacks, which
// rewrite the same struct ftl_lba_map_entry payload back unchanged.
const p2lEntrySize = 8

// numLBAInBlock is the number of map entries per P2L checkpoint page,
// matching FTL_NUM_LBA_IN_BLOCK.
const numLBAInBlock = 512

// p2lTargetVersion is the version read_next_p2l_entry stamps into every
// page it visits, matching FTL_P2L_VERSION_1.
const p2lTargetVersion = 1

// castagnoliTable is the CRC32C polynomial table used for every P2L
// page checksum, matching the source's spdk_crc32c usage exactly.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// p2lPages is implemented by collaborator backends that expose a
// page-addressable P2L checkpoint region. The version-upgrade algorithm
// reads and writes pages directly through it, since the page layout and
// its out-of-band metadata are version-upgrade-specific and have no
// home in the engine-facing façade.
type p2lPages interface {
	NumEntries(region int) int
	TotalPages(region int) int
	Page(region, idx, entrySize int) []byte
	PageVersion(region, idx int) int
	SetPage(region, idx, version int, checksum uint32)
}

// P2LUpgradeV0ToV1 walks one region's checkpoint pages exactly as
// read_next_p2l_entry does: for each index in [0, num_entries) it reads
// the page's out-of-band version and skips the page if it is already at
// the target version; otherwise it computes the page's checksum over
// its raw address payload, stamps checksum and version, and writes the
// page back. For indices in [num_entries, total_pages) — alignment
// padding beyond the last real entry — it writes a zeroed page with
// only the version bumped, matching the source's "bump version in VSS,
// clear the data" tail case.
func P2LUpgradeV0ToV1(p collab.Provider, region string, fromVersion int) error {
	if fromVersion != 0 {
		return fmt.Errorf("upgrade: p2l region %q: unsupported from-version %d", region, fromVersion)
	}

	pages, ok := p.P2L().(p2lPages)
	if !ok {
		return fmt.Errorf("upgrade: p2l collaborator does not expose page buffers")
	}

	const regionIdx = 0
	numEntries := pages.NumEntries(regionIdx)
	totalPages := pages.TotalPages(regionIdx)
	const pageSize = numLBAInBlock * p2lEntrySize

	for idx := 0; idx < numEntries; idx++ {
		if pages.PageVersion(regionIdx, idx) == p2lTargetVersion {
			continue
		}
		payload := pages.Page(regionIdx, idx, pageSize)
		checksum := crc32.Checksum(payload, castagnoliTable)
		pages.SetPage(regionIdx, idx, p2lTargetVersion, checksum)
	}

	for idx := numEntries; idx < totalPages; idx++ {
		// Still a "read" of the page's current oob version before the
		// unconditional padding write, matching the source's pattern of
		// visiting every index in the region once.
		_ = pages.PageVersion(regionIdx, idx)
		payload := pages.Page(regionIdx, idx, pageSize)
		for i := range payload {
			payload[i] = 0
		}
		pages.SetPage(regionIdx, idx, p2lTargetVersion, 0)
	}

	return nil
}
