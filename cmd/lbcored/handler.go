package main

import (
	"log"
	"net"
	"strings"

	"github.com/fastserver/lbcore/internal/buf"
	"github.com/fastserver/lbcore/internal/conn"
	"github.com/fastserver/lbcore/internal/htx"
	"github.com/fastserver/lbcore/internal/mux/h1"
	"github.com/fastserver/lbcore/internal/sched"
)

const ioBufSize = 16384

// handleConn drives one accepted connection end to end: registers it
// in the fd table, arms an idle-timeout task on the scheduler, then
// alternates H1 parse/respond cycles until the peer closes or a
// connection-mode decision says to close (spec.md 4.F).
func (s *Server) handleConn(nc net.Conn, tid int) {
	defer nc.Close()

	fdNum, ok := rawFD(nc)
	if !ok {
		log.Printf("handleConn: could not obtain raw fd, closing")
		return
	}
	entry := s.fdTable.Get(fdNum)
	if entry == nil {
		return
	}
	entry.Reset()
	entry.WantRecv()

	c := conn.New(fdNum, entry, tid)
	if tcpConn, ok := nc.(*net.TCPConn); ok {
		if host, port, ok := splitHostPort(tcpConn.RemoteAddr()); ok {
			c.Src = host
			c.SrcPort = port
		}
	}

	idleTask := s.sched.NewTask(tid, 1<<uint(tid), 0, func(ctx any) sched.Result {
		conn := ctx.(net.Conn)
		conn.Close()
		return sched.Done
	}, nc)
	c.TimeoutTask = idleTask
	defer s.sched.ReleaseTask(tid, idleTask)

	mgr := s.cfg.Snapshot()
	idleMS := mgr.IdleTimeoutMS
	s.sched.SetTimer(tid, idleTask, msToTick(idleMS))
	defer s.sched.SetTimer(tid, idleTask, sched.Eternity)

	mx := h1.New(false)
	ibuf := buf.New(make([]byte, ioBufSize))
	obuf := buf.New(make([]byte, ioBufSize))

	scratch := make([]byte, ioBufSize)
	req := htx.New() // accumulates one request's blocks across reads
	for {
		s.sched.SetTimer(tid, idleTask, msToTick(idleMS))

		if ibuf.ContigSpace() == nil && ibuf.Room() > 0 {
			ibuf.BSlowRealign(scratch, 0)
		}
		n, err := nc.Read(ibuf.ContigSpace())
		if n > 0 {
			ibuf.BAdd(n)
		}
		if err != nil {
			if n == 0 {
				return
			}
		}

		state, _ := mx.ParseFromBuffer(ibuf, req, true)

		if mx.UpgradeH2C {
			s.activity.For(tid).LongRQ.Add(1)
			ibuf.BDel(len(h1.H2Preface))
			leftover := make([]byte, ibuf.Len())
			ibuf.BGet(leftover)
			serveH2C(s, nc, tid, leftover)
			return
		}

		if mx.Flags&h1.FlagReqError != 0 {
			s.activity.For(tid).EmptyRQ.Add(1)
			return
		}
		if state != h1.StDone {
			if err != nil {
				return
			}
			continue // need more bytes for this request
		}

		version := ""
		if req.Len() > 0 && req.Blocks[0].Type == htx.ReqSL {
			version = req.Blocks[0].StartLine.Version
		}
		connHdr, _ := req.FindHeader("Connection")
		mx.Mode = h1.DecideConnModeRequest(version,
			strings.EqualFold(connHdr, "close"), strings.EqualFold(connHdr, "keep-alive"), false)

		resp := buildResponse(req)
		req.Reset()
		mx.FormatToBuffer(resp, obuf, false)

		if obuf.Len() > 0 {
			out := make([]byte, obuf.Len())
			obuf.BGet(out)
			if _, err := nc.Write(out); err != nil {
				s.activity.For(tid).ConnDead.Add(1)
				return
			}
		}

		if mx.Mode == h1.WantCLO {
			return
		}
	}
}

// buildResponse answers any well-formed request with a small fixed
// 200 response; the request-routing/handler dispatch spec.md itself
// does not specify is intentionally minimal here since spec.md scopes
// the core's job as transport/protocol plumbing, not application
// routing (core/router is this binary's explicit non-goal, see
// DESIGN.md).
func buildResponse(req *htx.Message) *htx.Message {
	resp := htx.New()
	resp.AddResSL("HTTP/1.1", 200, "OK")
	resp.AddHeader("Content-Type", "text/plain")
	resp.AddHeader("Content-Length", "2")
	resp.AddEOH()
	resp.AddData([]byte("ok"))
	resp.AddEOM()
	return resp
}

func splitHostPort(addr net.Addr) (net.IP, uint16, bool) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, 0, false
	}
	return tcpAddr.IP, uint16(tcpAddr.Port), true
}
