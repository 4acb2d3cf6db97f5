package transformers

import (
	"context"
	"net/netip"
	"regexp"
	"sort"

	"github.com/custodia-labs/derivex/internal/core/domain"
	"github.com/custodia-labs/derivex/internal/core/ports/driven"
)

// IPAddrName is the registry name of the ipaddr transformer.
const IPAddrName = "ipaddr"

var ipv4Candidate = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// IPAddr extracts distinct IPv4 addresses from a text field.
type IPAddr struct {
	field  string
	target string
}

// NewIPAddr creates an ipaddr transformer reading field and writing target.
func NewIPAddr(field, target string) *IPAddr {
	if field == "" {
		field = "text"
	}
	if target == "" {
		target = "ip_addresses"
	}
	return &IPAddr{field: field, target: target}
}

// Name returns the transformer name.
func (p *IPAddr) Name() string {
	return IPAddrName
}

// Transform writes the sorted addresses. Nothing is written when none are found.
func (p *IPAddr) Transform(_ context.Context, updates domain.UpdateSet, original domain.Document, _ driven.TransformContext) (domain.UpdateSet, error) {
	text, ok, err := stringField(original, p.field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return updates, nil
	}

	addrs := ExtractIPv4(text)
	if len(addrs) == 0 {
		return updates, nil
	}
	updates[p.target] = addrs
	return updates, nil
}

// ExtractIPv4 returns the distinct valid IPv4 addresses in s, sorted.
func ExtractIPv4(s string) []string {
	seen := make(map[netip.Addr]struct{})
	var addrs []netip.Addr
	for _, m := range ipv4Candidate.FindAllString(s, -1) {
		addr, err := netip.ParseAddr(m)
		if err != nil || !addr.Is4() {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
