package snmp

import (
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
)

func TestNewClient_defaults(t *testing.T) {
	c := NewClient(Config{})
	if c.cfg.Community != "public" || c.cfg.Version != "2c" || c.cfg.Port != 161 {
		t.Fatalf("unexpected defaults: %+v", c.cfg)
	}
	if c.cfg.Timeout != 900*time.Millisecond {
		t.Fatalf("unexpected timeout: %v", c.cfg.Timeout)
	}
}

func TestDecodeSystem(t *testing.T) {
	got := decodeSystem([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.5.0", Type: gosnmp.OctetString, Value: []byte("relay ")},
		{Name: ".1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("OpenWrt 19.07")},
		{Name: ".1.3.6.1.2.1.1.4.0", Type: gosnmp.OctetString, Value: []byte("")},
		{Name: ".1.3.6.1.2.1.1.6.0", Type: gosnmp.Integer, Value: 7},
	})
	if got.SysName == nil || *got.SysName != "relay" {
		t.Fatalf("sysName = %v", got.SysName)
	}
	if got.SysDescr == nil || *got.SysDescr != "OpenWrt 19.07" {
		t.Fatalf("sysDescr = %v", got.SysDescr)
	}
	if got.SysContact != nil {
		t.Fatalf("empty sysContact must be nil")
	}
	if got.SysLocation != nil {
		t.Fatalf("non-string sysLocation must be nil")
	}
}
