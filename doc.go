// Package wireloop is the incremental read/parse/write engine of a
// byte-stream protocol endpoint.
//
// It feeds a streaming parser exactly as many bytes as it needs across
// network reads, bounds the memory one in-flight message may take, and
// writes responses made of several discontiguous fragments with a single
// vectored write.
//
// # Reading
//
// ReadAndParse drives an injected Parser over a buffet.RollMut:
//
//	buf := buffet.NewRollMut(0)
//	for {
//	    var req Request
//	    var err error
//	    buf, req, err = wireloop.ReadAndParse(ctx, parseRequest, conn, buf, 64*1024)
//	    if err == io.EOF {
//	        return nil // peer closed between messages
//	    }
//	    if err != nil {
//	        var se wireloop.SemanticError
//	        if errors.As(err, &se) {
//	            list.Push(se.AsHTTPResponse())
//	            wireloop.WriteAllList(ctx, conn, list)
//	        }
//	        return err
//	    }
//	    handle(req)
//	}
//
// Pipelined messages stay in buf; the next call parses them without reading.
//
// # Writing
//
// WriteAllList sends a buffet.PieceList with one scatter-gather write and
// hands the list back empty so its backing array can be reused:
//
//	list.PushString("HTTP/1.1 200 OK\r\n")
//	list.Push(headers)
//	list.Push(body)
//	list, err = wireloop.WriteAllList(ctx, conn, list)
//
// # Error Handling
//
// Every error carries its kind and, through ShouldCloseConnection, whether
// the connection survives it:
//
//   - SemanticError: protocol-level failure with a canned response
//   - *ParseError: rejected input, with a bounded copy of the bytes
//   - *UnexpectedEOFError: the peer closed mid-message
//   - *ConnectionError: transport failure, underlying error reachable
//   - *ShortWriteError: a write delivered less than requested
//
// # Ownership
//
// Buffers and fragment lists are passed into an operation and handed back
// by it. Between the two, the caller must not touch them; after an error
// they must be discarded rather than reused.
//
// # Logging
//
// Both operations log through the zerolog logger attached to the context
// (see zerolog.Logger.WithContext): trace events for buffer sizes and a hex
// preview of incomplete input, debug events for parse failures and writes.
package wireloop
