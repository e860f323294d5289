package boot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Addresses are written as "0x"-prefixed hex strings: JSON numbers cannot carry the full range of
// a 64-bit address.

func parseAddress(value string) (uint64, error) {
	digits := strings.ReplaceAll(value, "_", "")
	if hex, ok := strings.CutPrefix(strings.ToLower(digits), "0x"); ok {
		return strconv.ParseUint(hex, 16, 64)
	}
	return strconv.ParseUint(digits, 10, 64)
}

func formatAddress(value uint64) string {
	return fmt.Sprintf("%#x", value)
}

func readPhysAddr(r *jreader.Reader) addr.PhysAddr {
	value := r.String()
	if r.Error() != nil {
		return 0
	}

	raw, err := parseAddress(value)
	if err != nil {
		r.AddError(errors.Wrapf(err, "invalid physical address '%s'", value))
		return 0
	}

	phys, err := addr.NewPhysAddr(raw)
	if err != nil {
		r.AddError(err)
	}
	return phys
}

func readMemoryRegion(r *jreader.Reader) MemoryRegion {
	var region MemoryRegion

	for obj := r.Object().WithRequiredProperties([]string{"start", "end", "kind"}); obj.Next(); {
		switch string(obj.Name()) {
		case "start":
			region.Start = readPhysAddr(r)
		case "end":
			region.End = readPhysAddr(r)
		case "kind":
			kind, err := ParseRegionKind(r.String())
			if err != nil && r.Error() == nil {
				r.AddError(err)
			}
			region.Kind = kind
		}
	}

	return region
}

// DecodeInfo reads boot information from JSON of the form
//
//	{"physical_memory_offset": "0x10000000000",
//	 "memory_map": [{"start": "0x0", "end": "0x1000", "kind": "FrameZero"}, ...]}
func DecodeInfo(data []byte) (Info, error) {
	var info Info
	r := jreader.NewReader(data)

	for obj := r.Object().WithRequiredProperties([]string{"physical_memory_offset", "memory_map"}); obj.Next(); {
		switch string(obj.Name()) {
		case "physical_memory_offset":
			value := r.String()
			if r.Error() != nil {
				break
			}

			raw, err := parseAddress(value)
			if err != nil {
				r.AddError(errors.Wrapf(err, "invalid physical memory offset '%s'", value))
				break
			}

			offset, err := addr.NewVirtAddr(raw)
			if err != nil {
				r.AddError(err)
				break
			}
			info.PhysicalMemoryOffset = offset
		case "memory_map":
			for arr := r.Array(); arr.Next(); {
				info.MemoryMap = append(info.MemoryMap, readMemoryRegion(&r))
			}
		}
	}

	if err := r.Error(); err != nil {
		return Info{}, errors.Wrap(err, "failed to decode boot information")
	}

	if err := info.MemoryMap.Validate(); err != nil {
		return Info{}, err
	}

	return info, nil
}

// EncodeInfo writes boot information in the form DecodeInfo reads
func EncodeInfo(info Info) []byte {
	writer := jwriter.NewWriter()
	obj := writer.Object()
	obj.Name("physical_memory_offset").String(formatAddress(uint64(info.PhysicalMemoryOffset)))

	arr := obj.Name("memory_map").Array()
	for _, region := range info.MemoryMap {
		regionObj := arr.Object()
		regionObj.Name("start").String(formatAddress(uint64(region.Start)))
		regionObj.Name("end").String(formatAddress(uint64(region.End)))
		regionObj.Name("kind").String(region.Kind.String())
		regionObj.End()
	}
	arr.End()
	obj.End()

	return writer.Bytes()
}
