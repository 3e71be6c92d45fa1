package hypervisor

import (
	"github.com/sirupsen/logrus"
)

// unreadableField is reported for fields VMREAD refuses.
const unreadableField = 0xbadc0de

// FieldValue is one VMCS field and its value at snapshot time.
type FieldValue struct {
	Field VmcsField
	Value uint64
	// Err is set if the field could not be read; Value is then
	// unreadableField.
	Err error
}

// Snapshot reads every field in the directory from the current VMCS.
func (c *Core) Snapshot() []FieldValue {
	out := make([]FieldValue, 0, len(VmcsFields))
	for _, f := range VmcsFields {
		v, err := c.cpu.VMREAD(uint32(f))
		if err != nil {
			v = unreadableField
		}
		out = append(out, FieldValue{Field: f, Value: v, Err: err})
	}
	return out
}

// DumpVMCS logs every field of the current VMCS at debug level.
func (c *Core) DumpVMCS() { c.dumpVMCS(logrus.DebugLevel) }

func (c *Core) dumpVMCS(level logrus.Level) {
	if !c.log.Logger.IsLevelEnabled(level) {
		return
	}
	c.log.Log(level, "Dumping vmcs")
	for _, fv := range c.Snapshot() {
		c.log.Logf(level, "%s: %#x", fv.Field, fv.Value)
	}
}
