package wire

import "testing"

func TestDecodeNoAction(t *testing.T) {
	_, err := Decode([]byte(`{"foo":"bar"}`))
	if err != ErrNoAction {
		t.Fatalf("expected ErrNoAction, got %v", err)
	}
}

func TestDecodeUnknownAction(t *testing.T) {
	_, err := Decode([]byte(`{"action":"nonsense"}`))
	if err != ErrUnknownAction {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestDecodeVersion(t *testing.T) {
	msg, err := Decode([]byte(`{"action":"version","protocol":"1.4.1","app":"lanscatter-client"}`))
	if err != nil {
		t.Fatal(err)
	}
	v, ok := msg.(*Version)
	if !ok {
		t.Fatalf("expected *Version, got %T", msg)
	}
	if v.Protocol != "1.4.1" {
		t.Errorf("unexpected protocol: %v", v.Protocol)
	}
}

func TestDecodeVersionMissingField(t *testing.T) {
	_, err := Decode([]byte(`{"action":"version","protocol":"1.4.1"}`))
	if err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeJoinSwarm(t *testing.T) {
	msg, err := Decode([]byte(`{"action":"join_swarm","hashes":["A","B"],"dl_url":"http://peer/blob/{hash}","concurrent_transfers":2,"nick":"p1"}`))
	if err != nil {
		t.Fatal(err)
	}
	j, ok := msg.(*JoinSwarm)
	if !ok {
		t.Fatalf("expected *JoinSwarm, got %T", msg)
	}
	if j.Nick != "p1" || j.ConcurrentTransfers != 2 {
		t.Errorf("unexpected JoinSwarm contents: %+v", j)
	}
}

func TestDecodeJoinSwarmBadConcurrentTransfers(t *testing.T) {
	_, err := Decode([]byte(`{"action":"join_swarm","hashes":[],"dl_url":"http://peer/blob/{hash}","concurrent_transfers":0,"nick":"p1"}`))
	if err != ErrMalformed {
		t.Fatalf("expected ErrMalformed for concurrent_transfers<1, got %v", err)
	}
}

func TestDecodeJoinSwarmMissingHashes(t *testing.T) {
	_, err := Decode([]byte(`{"action":"join_swarm","dl_url":"http://peer/blob/{hash}","concurrent_transfers":1,"nick":"p1"}`))
	if err != ErrMalformed {
		t.Fatalf("expected ErrMalformed for missing hashes, got %v", err)
	}
}

func TestDecodeSetHashesEmptyListIsValid(t *testing.T) {
	msg, err := Decode([]byte(`{"action":"set_hashes","hashes":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	s, ok := msg.(*SetHashes)
	if !ok || len(s.Hashes) != 0 {
		t.Fatalf("expected *SetHashes with empty hashes, got %+v", msg)
	}
}

func TestDecodeReportTransfers(t *testing.T) {
	msg, err := Decode([]byte(`{"action":"report_transfers","dls":[{"hash":"A","url":"http://seed/blob/A","mbps_limit":1.5}],"ul_count":2,"ul_times":[1.1,2.2]}`))
	if err != nil {
		t.Fatal(err)
	}
	r, ok := msg.(*ReportTransfers)
	if !ok {
		t.Fatalf("expected *ReportTransfers, got %T", msg)
	}
	if len(r.DLs) != 1 || r.ULCount != 2 || len(r.ULTimes) != 2 {
		t.Errorf("unexpected ReportTransfers contents: %+v", r)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
