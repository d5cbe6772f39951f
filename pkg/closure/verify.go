package closure

import (
	"fmt"
	"sort"
	"strings"

	"github.com/itsneelabh/weave/pkg/core"
)

// MismatchError reports a preinitialize list that differs from the computed
// closure. Missing types are computed but not listed; Extra types are listed
// but not computed.
type MismatchError struct {
	Missing []string
	Extra   []string
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	b.WriteString(core.ErrReachabilityMismatch.Error())
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing %d: %s", len(e.Missing), strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, "; extra %d: %s", len(e.Extra), strings.Join(e.Extra, ", "))
	}
	return b.String()
}

func (e *MismatchError) Unwrap() error { return core.ErrReachabilityMismatch }

// Verify returns nil when expected equals computed as a set, and a
// *MismatchError otherwise. Duplicates in expected are ignored.
func Verify(expected []string, computed TypeSet) error {
	want := make(TypeSet, len(expected))
	for _, name := range expected {
		want.Add(name)
	}
	var mm MismatchError
	for name := range computed {
		if !want.Has(name) {
			mm.Missing = append(mm.Missing, name)
		}
	}
	for name := range want {
		if !computed.Has(name) {
			mm.Extra = append(mm.Extra, name)
		}
	}
	if len(mm.Missing) == 0 && len(mm.Extra) == 0 {
		return nil
	}
	sort.Strings(mm.Missing)
	sort.Strings(mm.Extra)
	return &mm
}
