package aiserver

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

type decodeError struct {
	msg string
}

func (e *decodeError) Error() string { return "aiserver: " + e.msg }

func errMalformed(what string) error {
	return &decodeError{msg: "malformed " + what}
}

// fieldIter walks the top-level fields of one message body.
type fieldIter struct {
	b []byte
}

func (it *fieldIter) next() (protowire.Number, protowire.Type, bool) {
	if len(it.b) == 0 {
		return 0, 0, false
	}
	num, typ, n := protowire.ConsumeTag(it.b)
	if n < 0 {
		return 0, 0, false
	}
	it.b = it.b[n:]
	return num, typ, true
}

func (it *fieldIter) varint() (uint64, error) {
	v, n := protowire.ConsumeVarint(it.b)
	if n < 0 {
		return 0, errMalformed("varint")
	}
	it.b = it.b[n:]
	return v, nil
}

func (it *fieldIter) bytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(it.b)
	if n < 0 {
		return nil, errMalformed("length-delimited field")
	}
	it.b = it.b[n:]
	return v, nil
}

func (it *fieldIter) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, it.b)
	if n < 0 {
		return errMalformed(fmt.Sprintf("field %d", num))
	}
	it.b = it.b[n:]
	return nil
}

// consumeToolEnums accepts both packed and unpacked repeated enums.
func consumeToolEnums(it *fieldIter, typ protowire.Type, dst []ClientSideToolV2) ([]ClientSideToolV2, error) {
	if typ == protowire.VarintType {
		v, err := it.varint()
		if err != nil {
			return dst, err
		}
		return append(dst, ClientSideToolV2(v)), nil
	}
	packed, err := it.bytes()
	if err != nil {
		return dst, err
	}
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return dst, errMalformed("packed enum")
		}
		packed = packed[n:]
		dst = append(dst, ClientSideToolV2(v))
	}
	return dst, nil
}

func unmarshalThinking(b []byte) (*Thinking, error) {
	m := &Thinking{}
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
			m.Text = string(v)
		case 2:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			m.Signature = string(v)
		case 3:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			m.RedactedThinking = string(v)
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalWebReference(b []byte) (WebReference, error) {
	var m WebReference
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
			m.URL = string(v)
		case 2:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.Title = string(v)
		case 3:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.Chunk = string(v)
		default:
			if err := it.skip(num, typ); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

func unmarshalWebCitation(b []byte) (*WebCitation, error) {
	m := &WebCitation{}
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
			ref, err := unmarshalWebReference(v)
			if err != nil {
				return nil, err
			}
			m.References = append(m.References, ref)
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalMcpTool(b []byte) (McpTool, error) {
	var m McpTool
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
			m.Name = string(v)
		case 2:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.Description = string(v)
		case 3:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.Parameters = string(v)
		case 4:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			m.ServerName = string(v)
		default:
			if err := it.skip(num, typ); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

func unmarshalMcpParams(b []byte) (*McpParams, error) {
	m := &McpParams{}
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
			tool, err := unmarshalMcpTool(v)
			if err != nil {
				return nil, err
			}
			m.Tools = append(m.Tools, tool)
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalClientSideToolV2Call(b []byte) (*ClientSideToolV2Call, error) {
	m := &ClientSideToolV2Call{}
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
		case 3:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			m.ToolCallID = string(v)
		case 9:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			m.Name = string(v)
		case 10:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			m.RawArgs = string(v)
		case 14:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			m.IsStreaming = v != 0
		case 15:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			m.IsLastMessage = v != 0
		case 27:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			params, err := unmarshalMcpParams(v)
			if err != nil {
				return nil, err
			}
			m.McpParams = params
		case 48:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			idx := uint32(v)
			m.ToolIndex = &idx
		case 49:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			s := string(v)
			m.ModelCallID = &s
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalStreamUnifiedChatResponse(b []byte) (*StreamUnifiedChatResponse, error) {
	m := &StreamUnifiedChatResponse{}
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
			m.Text = string(v)
		case 11:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			cit, err := unmarshalWebCitation(v)
			if err != nil {
				return nil, err
			}
			m.WebCitation = cit
		case 25:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			th, err := unmarshalThinking(v)
			if err != nil {
				return nil, err
			}
			m.Thinking = th
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// UnmarshalStreamUnifiedChatResponseWithTools decodes one response
// envelope frame payload.
func UnmarshalStreamUnifiedChatResponseWithTools(b []byte) (*StreamUnifiedChatResponseWithTools, error) {
	m := &StreamUnifiedChatResponseWithTools{}
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
			call, err := unmarshalClientSideToolV2Call(v)
			if err != nil {
				return nil, err
			}
			m.ClientSideToolV2Call = call
		case 2:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			resp, err := unmarshalStreamUnifiedChatResponse(v)
			if err != nil {
				return nil, err
			}
			m.StreamUnifiedChatResponse = resp
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalTokenCount(b []byte) (*TokenCount, error) {
	m := &TokenCount{}
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 2:
			v, err := it.varint()
			if err != nil {
				return nil, err
			}
			n := int32(v)
			m.NumTokens = &n
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// UnmarshalGetPromptDryRunResponse decodes the dry-run RPC answer.
func UnmarshalGetPromptDryRunResponse(b []byte) (*GetPromptDryRunResponse, error) {
	m := &GetPromptDryRunResponse{}
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 4, 5:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			tc, err := unmarshalTokenCount(v)
			if err != nil {
				return nil, err
			}
			if num == 4 {
				m.UserMessageTokenCount = tc
			} else {
				m.FullConversationTokenCount = tc
			}
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalAvailableModel(b []byte) (AvailableModel, error) {
	var m AvailableModel
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
			m.Name = string(v)
		case 2:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			m.DefaultOn = v != 0
		case 9:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			x := v != 0
			m.SupportsThinking = &x
		case 10:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			x := v != 0
			m.SupportsImages = &x
		case 14:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			x := v != 0
			m.SupportsMaxMode = &x
		case 15:
			v, err := it.varint()
			if err != nil {
				return m, err
			}
			x := int32(v)
			m.ContextTokenLimit = &x
		case 17:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			s := string(v)
			m.ClientDisplayName = &s
		case 18:
			v, err := it.bytes()
			if err != nil {
				return m, err
			}
			s := string(v)
			m.ServerModelName = &s
		default:
			if err := it.skip(num, typ); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// UnmarshalAvailableModelsResponse decodes the model list RPC answer.
func UnmarshalAvailableModelsResponse(b []byte) (*AvailableModelsResponse, error) {
	m := &AvailableModelsResponse{}
	it := &fieldIter{b: b}
	for {
		num, typ, ok := it.next()
		if !ok {
			break
		}
		switch num {
		case 2:
			v, err := it.bytes()
			if err != nil {
				return nil, err
			}
			model, err := unmarshalAvailableModel(v)
			if err != nil {
				return nil, err
			}
			m.Models = append(m.Models, model)
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
