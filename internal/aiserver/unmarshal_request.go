package aiserver

// Request-side decoding. The proxy never receives these messages from
// the upstream; the decoder exists for the dry-run echo path and for
// verifying encoded envelopes in tests.

func unmarshalEnvironmentInfo(b []byte) (*EnvironmentInfo, error) {
	m := &EnvironmentInfo{}
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 1, 2, 5, 7:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			switch num {
			case 1:
				m.ExthostPlatform = string(v)
			case 2:
				m.ExthostArch = string(v)
			case 5:
				m.LocalTimestamp = string(v)
			case 7:
				m.CursorVersion = string(v)
			}
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalExplicitContext(b []byte) (*ExplicitContext, error) {
	m := &ExplicitContext{}
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 1, 2, 4:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			switch num {
			case 1:
				m.Context = string(v)
			case 2:
				m.RepoContext = string(v)
			case 4:
				m.ModeSpecificContext = string(v)
			}
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalModelDetails(b []byte) (*ModelDetails, error) {
	m := &ModelDetails{}
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			s := string(v)
			m.ModelName = &s
		case 5:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			x := v != 0
			m.EnableSlowPool = &x
		case 8:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			x := v != 0
			m.MaxMode = &x
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalImageProto(b []byte) (ImageProto, error) {
	var m ImageProto
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.Data = append([]byte(nil), v...)
		case 2:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			d := &Dimension{}
			dit := &fieldIter{b: v}
			for {
				dn, dt, dok := dit.next()
				if !dok {
					break
				}
				switch dn {
				case 1, 2:
					x, err := dit.varint()
					if err != nil {
						return m, err
					}
					if dn == 1 {
						d.Width = int32(x)
					} else {
						d.Height = int32(x)
					}
				default:
					if err := dit.skip(dn, dt); err != nil {
						return m, err
					}
				}
			}
			m.Dimension = d
		case 3:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.UUID = string(v)
		default:
			if err := it.skip(num, typ); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

func unmarshalConversationMessage(b []byte) (ConversationMessage, error) {
	var m ConversationMessage
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.Text = string(v)
		case 2:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			m.Type = MessageType(v)
		case 10:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			img, err := unmarshalImageProto(v)
			if err != nil {
				return m, err
			}
			m.Images = append(m.Images, img)
		case 13:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.BubbleID = string(v)
		case 29:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			m.IsAgentic = v != 0
		case 32:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			s := string(v)
			m.ServerBubbleID = &s
		case 45:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			th, err := unmarshalThinking(v)
			if err != nil {
				return m, err
			}
			m.Thinking = th
		case 47:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			um := UnifiedMode(v)
			m.UnifiedMode = &um
		case 51:
			var err error
			m.SupportedTools, err = consumeToolEnums(it, typ, m.SupportedTools)
			if err != nil {
				return m, err
			}
		case 63:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			x := v != 0
			m.UseWeb = &x
		default:
			if err := it.skip(num, typ); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

func unmarshalConversationMessageHeader(b []byte) (ConversationMessageHeader, error) {
	var m ConversationMessageHeader
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.BubbleID = string(v)
		case 2:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			s := string(v)
			m.ServerBubbleID = &s
		case 3:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			m.Type = MessageType(v)
		default:
			if err := it.skip(num, typ); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

func unmarshalStreamUnifiedChatRequest(b []byte) (*StreamUnifiedChatRequest, error) {
	m := &StreamUnifiedChatRequest{}
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			msg, err := unmarshalConversationMessage(v)
			if err != nil {
				return nil, err
			}
			m.Conversation = append(m.Conversation, msg)
		case 3:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			ec, err := unmarshalExplicitContext(v)
			if err != nil {
				return nil, err
			}
			m.ExplicitContext = ec
		case 5:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			md, err := unmarshalModelDetails(v)
			if err != nil {
				return nil, err
			}
			m.ModelDetails = md
		case 8:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			s := string(v)
			m.UseWeb = &s
		case 22:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			m.IsChat = v != 0
		case 23:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			m.ConversationID = string(v)
		case 26:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			ei, err := unmarshalEnvironmentInfo(v)
			if err != nil {
				return nil, err
			}
			m.EnvironmentInfo = ei
		case 27:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			m.IsAgentic = v != 0
		case 29:
			var err error
			m.SupportedTools, err = consumeToolEnums(it, typ, m.SupportedTools)
			if err != nil {
				return nil, err
			}
		case 30:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			h, err := unmarshalConversationMessageHeader(v)
			if err != nil {
				return nil, err
			}
			m.FullConversationHeadersOnly = append(m.FullConversationHeadersOnly, h)
		case 34:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			tool, err := unmarshalMcpTool(v)
			if err != nil {
				return nil, err
			}
			m.McpTools = append(m.McpTools, tool)
		case 46:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			um := UnifiedMode(v)
			m.UnifiedMode = &um
		case 49:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			tl := ThinkingLevel(v)
			m.ThinkingLevel = &tl
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalClientSideToolV2Result(b []byte) (*ClientSideToolV2Result, error) {
	m := &ClientSideToolV2Result{}
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			m.Tool = ClientSideToolV2(v)
		case 28:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			res := &McpResult{}
			rit := &fieldIter{b: v}
			for {
				rn, rt, rok := rit.next()
				if !rok {
					break
				}
				switch rn {
				case 1, 2:
					rv, err := rit.bytes()
					if err != nil {
						return nil, err
					}
					if rn == 1 {
						res.SelectedTool = string(rv)
					} else {
						res.Result = string(rv)
					}
				default:
					if err := rit.skip(rn, rt); err != nil {
						return nil, err
					}
				}
			}
			m.McpResult = res
		case 35:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			m.ToolCallID = string(v)
		case 48:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			s := string(v)
			m.ModelCallID = &s
		case 49:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			idx := uint32(v)
			m.ToolIndex = &idx
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// UnmarshalStreamUnifiedChatRequestWithTools decodes a request envelope.
func UnmarshalStreamUnifiedChatRequestWithTools(b []byte) (*StreamUnifiedChatRequestWithTools, error) {
	m := &StreamUnifiedChatRequestWithTools{}
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			req, err := unmarshalStreamUnifiedChatRequest(v)
			if err != nil {
				return nil, err
			}
			m.StreamUnifiedChatRequest = req
		case 2:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			res, err := unmarshalClientSideToolV2Result(v)
			if err != nil {
				return nil, err
			}
			m.ClientSideToolV2Result = res
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
