package memdev

import (
	"context"
	"sync"

	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

// p2lPage holds one checkpoint page's raw address payload plus the
// out-of-band version/checksum metadata the version-upgrade algorithm
// reads and stamps, grounded on the paired ftl_p2l_ckpt_page /
// union ftl_md_vss pages in the original source.
type p2lPage struct {
	payload  []byte
	version  int
	checksum uint32
}

// p2lRegion holds one checkpoint region's pages, grounded on the
// ftl_p2l_ckpt per-region buffer the source allocates per band.
// Pages [0, numEntries) carry real map entries; pages
// [numEntries, len(pages)) are alignment padding reachable only by
// index, per ftl_mngt_upgrade's region-upgrade contract.
type p2lRegion struct {
	pages      []p2lPage
	numEntries int
}

// P2L is the in-memory physical-to-logical checkpoint collaborator.
// internal/upgrade reaches into regions directly via the page accessor
// methods below for the version-upgrade algorithm.
type P2L struct {
	mu      sync.Mutex
	regions map[int]*p2lRegion
}

func newP2L() *P2L {
	return &P2L{regions: map[int]*p2lRegion{}}
}

func (p *P2L) InitCkpt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.regions == nil {
		p.regions = map[int]*p2lRegion{}
	}
	return nil
}

func (p *P2L) DeinitCkpt() {
	p.mu.Lock()
	p.regions = map[int]*p2lRegion{}
	p.mu.Unlock()
}

func (p *P2L) Wipe(ctx context.Context, region int, done func(error)) {
	p.mu.Lock()
	delete(p.regions, region)
	p.mu.Unlock()
	done(nil)
}

func (p *P2L) FreeBufs(region int) {
	p.mu.Lock()
	delete(p.regions, region)
	p.mu.Unlock()
}

func (p *P2L) RestoreCkpt(ctx context.Context, region int, done func(error)) {
	p.mu.Lock()
	if _, ok := p.regions[region]; !ok {
		p.regions[region] = &p2lRegion{pages: make([]p2lPage, 1), numEntries: 1}
	}
	p.mu.Unlock()
	done(nil)
}

// locked looks up (allocating a single-page default region on first
// access, mirroring the old flat-buffer default) region's state. Caller
// must hold p.mu.
func (p *P2L) locked(region int) *p2lRegion {
	r, ok := p.regions[region]
	if !ok {
		r = &p2lRegion{pages: make([]p2lPage, 1), numEntries: 1}
		p.regions[region] = r
	}
	return r
}

// ConfigureRegion sets region's page layout directly: numEntries pages
// carry real map entries, and totalPages-numEntries further pages are
// alignment padding. Used by tests to lay out a region before the
// upgrade driver walks it; RestoreCkpt's single-page
// default is only a placeholder for regions nobody configures.
func (p *P2L) ConfigureRegion(region, numEntries, totalPages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regions[region] = &p2lRegion{pages: make([]p2lPage, totalPages), numEntries: numEntries}
}

// NumEntries reports how many of region's pages carry real map entries,
// as opposed to alignment padding.
func (p *P2L) NumEntries(region int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locked(region).numEntries
}

// TotalPages reports region's full page count, including padding.
func (p *P2L) TotalPages(region int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locked(region).pages)
}

// Page returns page idx's raw address payload, growing it to entrySize
// bytes on first access (or on a size change) while preserving existing
// content.
func (p *P2L) Page(region, idx, entrySize int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	pg := &p.locked(region).pages[idx]
	if len(pg.payload) != entrySize {
		grown := make([]byte, entrySize)
		copy(grown, pg.payload)
		pg.payload = grown
	}
	return pg.payload
}

// PageVersion reports page idx's out-of-band version stamp.
func (p *P2L) PageVersion(region, idx int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locked(region).pages[idx].version
}

// SetPage stamps page idx's out-of-band version and checksum after a
// rewrite.
func (p *P2L) SetPage(region, idx, version int, checksum uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pg := &p.locked(region).pages[idx]
	pg.version = version
	pg.checksum = checksum
}

// PageChecksum reports page idx's stamped checksum.
func (p *P2L) PageChecksum(region, idx int) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locked(region).pages[idx].checksum
}

var _ collab.P2L = (*P2L)(nil)
