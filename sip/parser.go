// Forked from github.com/StefanKopieczek/gossip by @StefanKopieczek
package sip

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/zenghr0820/gvoip/logger"
	"github.com/zenghr0820/gvoip/utils"
)

// RFC 3261 S.25 定义的空白字符
const abnfWs = " \t"

// CSeq 的最大序号 (2**31 - 1), RFC 3261 S. 8.1.1.5
const maxCseq = 2147483647

// Parser 将原始字节解析为 sip.Message 对象
type Parser interface {
	// Implements io.Writer. Queues the given bytes to be parsed.
	// 写入待解析的数据, 返回 err 并不代表数据有效, 只代表已进入解析队列
	Write(p []byte) (n int, err error)

	// 注册自定义头部解析器, 覆盖已有的解析器
	// 没有解析器的头部会生成 GenericHeader
	SetHeaderParser(headerName string, headerParser HeaderParser)

	Stop()
}

// HeaderParser 将原始头部数据转换为一个或多个 Header 对象
// 入参形如 ("max-forwards", "70")
type HeaderParser func(headerName string, headerData string) ([]Header, error)

func defaultHeaderParsers() map[string]HeaderParser {
	return map[string]HeaderParser{
		"to":             parseAddressHeader,
		"t":              parseAddressHeader,
		"from":           parseAddressHeader,
		"f":              parseAddressHeader,
		"contact":        parseAddressHeader,
		"m":              parseAddressHeader,
		"call-id":        parseCallId,
		"i":              parseCallId,
		"cseq":           parseCSeq,
		"via":            parseViaHeader,
		"v":              parseViaHeader,
		"max-forwards":   parseMaxForwards,
		"content-length": parseContentLength,
		"l":              parseContentLength,
		"content-type":   parseContentType,
		"c":              parseContentType,
		"expires":        parseExpires,
		"user-agent":     parseUserAgent,
	}
}

// ParseMessage 一次性解析一条完整的 SIP 消息
// 每次都会临时创建解析器, 比复用解析器开销更大
// 适用于无法保证同一连接的消息来自同一端点的场景(如 UDP)
func ParseMessage(msgData []byte) (Message, error) {
	if !bytes.Contains(msgData, []byte("\r\n\r\n")) {
		return nil, &BrokenMessageError{
			Err: fmt.Errorf("unterminated header block"),
			Msg: string(msgData),
		}
	}

	output := make(chan Message, 0)
	errs := make(chan error, 0)
	parser := NewParser(output, errs, false)
	defer parser.Stop()

	if _, err := parser.Write(msgData); err != nil {
		return nil, err
	}
	select {
	case msg := <-output:
		return msg, nil
	case err := <-errs:
		return nil, err
	}
}

// ParseHeader 解析一行头部文本, 产生一个或多个 Header 对象
// (同名头部可以折叠为一行逗号分隔的列表)
func ParseHeader(headerText string, headerParsers map[string]HeaderParser) ([]Header, error) {
	if headerParsers == nil {
		headerParsers = defaultHeaderParsers()
	}

	headers := make([]Header, 0)

	colonIdx := strings.Index(headerText, ":")
	if colonIdx == -1 {
		return nil, InvalidMessageFormat(fmt.Sprintf("field name with no value in header: %s", headerText))
	}

	fieldName := strings.TrimSpace(headerText[:colonIdx])
	lowerFieldName := strings.ToLower(fieldName)
	fieldText := strings.TrimSpace(headerText[colonIdx+1:])
	if headerParser, ok := headerParsers[lowerFieldName]; ok {
		return headerParser(lowerFieldName, fieldText)
	}

	// 没有注册解析器的头部保留为 GenericHeader
	header := GenericHeader{HeaderName: fieldName, Contents: fieldText}
	headers = append(headers, &header)

	return headers, nil
}

// 创建解析器
// 解析出来的消息通过 output 传出, 终止解析的错误通过 errs 传出
//
// streamed=false 时, 每次 Write 调用必须包含一条完整的 SIP 消息
// streamed=true 时, Write 可以只包含消息的一部分, 此时所有消息都必须带 Content-Length 头部,
// 缺失 Content-Length 会使解析器永久停止并向 errs 发送错误
// 当调用方无法从传输帧中可靠地识别消息边界时(如 TCP), 应设置 streamed=true
func NewParser(output chan<- Message, errs chan<- error, streamed bool) Parser {
	p := parser{streamed: streamed}

	// 注册标准头部解析器
	p.headerParsers = make(map[string]HeaderParser)
	for headerName, headerParser := range defaultHeaderParsers() {
		p.SetHeaderParser(headerName, headerParser)
	}

	p.output = output
	p.errs = errs

	if !streamed {
		// 非流式模式下, Write 计算出的消息体长度通过该通道传给解析协程
		p.bodyLengths.Init()
		p.bodyLengths.Run()
	}

	// 允许异步写入数据, 解析协程阻塞等待到足够的数据再解析
	p.input = newParserBuffer()

	// 逐行读取输入, 产生 Message 发往 p.output
	go p.parse(streamed)

	return &p
}

type parser struct {
	headerParsers map[string]HeaderParser
	streamed      bool
	input         *parserBuffer
	bodyLengths   utils.ElasticChan
	output        chan<- Message
	errs          chan<- error
	terminalErr   error
	stopped       bool
}

func (p *parser) Write(data []byte) (n int, err error) {
	if p.terminalErr != nil {
		// 解析器已因致命错误终止
		logger.Warnf("[parser] -> ignores %d new bytes due to previous terminal error: %s", len(data), p.terminalErr)
		return 0, p.terminalErr
	} else if p.stopped {
		return 0, WriteError("cannot write data to stopped parser")
	}

	if !p.streamed {
		p.bodyLengths.In <- getBodyLength(data)
	}

	if _, err := p.input.Write(data); err != nil {
		return 0, WriteError(err.Error())
	}

	return len(data), nil
}

// 停止解析器并释放资源
func (p *parser) Stop() {
	logger.Debug("[parser] -> stopping parser")
	p.stopped = true
	p.input.Stop()
	if !p.streamed {
		p.bodyLengths.Stop()
	}
	logger.Debug("[parser] -> parser stopped")
}

func (p *parser) SetHeaderParser(headerName string, headerParser HeaderParser) {
	headerName = strings.ToLower(headerName)
	p.headerParsers[headerName] = headerParser
}

// 逐条解析消息并发往 p.output
func (p *parser) parse(requireContentLength bool) {
	var msg Message

	for {
		// 解析起始行
		startLine, err := p.input.NextLine()
		if err != nil {
			logger.Debug("[parser] -> parser stopped")
			break
		}

		if isRequest(startLine) {
			method, recipient, sipVersion, err := ParseRequestLine(startLine)
			if err == nil {
				msg = newParsedRequest(method, recipient, sipVersion)
			}
			p.terminalErr = err
		} else if isResponse(startLine) {
			sipVersion, statusCode, reason, err := ParseStatusLine(startLine)
			if err == nil {
				msg = NewResponse("", sipVersion, statusCode, reason, []Header{}, "")
			}
			p.terminalErr = err
		} else {
			p.terminalErr = InvalidStartLineError(
				fmt.Sprintf("transmission beginning '%s' is not a SIP message", startLine))
		}

		if p.terminalErr != nil {
			p.terminalErr = InvalidStartLineError(
				fmt.Sprintf("failed to parse first line of message: %s", p.terminalErr))
			p.errs <- p.terminalErr
			break
		}

		// 解析头部区域
		// 头部可以跨行(后续行以空白开头), 先积累到 buffer, 到头部结束时再解析
		var buffer bytes.Buffer
		headers := make([]Header, 0)

		flushBuffer := func() {
			if buffer.Len() > 0 {
				newHeaders, err := ParseHeader(buffer.String(), p.headerParsers)
				if err == nil {
					headers = append(headers, newHeaders...)
				} else {
					logger.Debugf("[parser] -> skip header '%s' due to error: %s", buffer.String(), err)
				}
				buffer.Reset()
			}
		}

		for {
			line, err := p.input.NextLine()
			if err != nil {
				logger.Debug("[parser] -> parser stopped")
				break
			}

			if len(line) == 0 {
				// 头部区域结束
				flushBuffer()
				break
			}

			if !strings.Contains(abnfWs, string(line[0])) {
				// 新头部开始, 先解析 buffer 中已有的内容
				flushBuffer()
				buffer.WriteString(line)
			} else if buffer.Len() > 0 {
				// 折叠的续行, 追加到 buffer
				buffer.WriteString(" ")
				buffer.WriteString(strings.TrimSpace(line))
			} else {
				// 头部区域开头就出现续行, 丢弃
				logger.Debugf("[parser] -> discard unexpected continuation line '%s' at start of header block", line)
			}
		}

		// 将头部存入消息对象
		for _, header := range headers {
			msg.AddHeader(header)
		}

		var contentLength int

		// 确定消息体长度
		if p.streamed {
			// 流式模式依赖 Content-Length 头部确定消息边界
			contentLengthHeaders := msg.GetHeaders("Content-Length")
			if len(contentLengthHeaders) == 0 {
				p.terminalErr = &BrokenMessageError{
					Err: fmt.Errorf("missing required content-length header"),
					Msg: msg.Short(),
				}
				p.errs <- p.terminalErr
				break
			} else if len(contentLengthHeaders) > 1 {
				p.terminalErr = &BrokenMessageError{
					Err: fmt.Errorf("multiple content-length headers"),
					Msg: msg.Short(),
				}
				p.errs <- p.terminalErr
				break
			}

			contentLength = int(*(contentLengthHeaders[0].(*ContentLength)))
		} else {
			// 非流式模式下消息体长度已经由 Write 计算好
			contentLength = (<-p.bodyLengths.Out).(int)
		}

		// 提取消息体
		body, err := p.input.NextChunk(contentLength)
		if err != nil {
			logger.Debug("[parser] -> parser stopped while reading body")
			break
		}

		msg.SetBody(body, false)
		p.output <- msg
	}

	return
}

// 计算 SIP 消息体的大小
func getBodyLength(data []byte) int {
	s := string(data)

	// 消息体从第一个双 CRLF 之后开始
	bodyStart := strings.Index(s, "\r\n\r\n")
	if bodyStart == -1 {
		return 0
	}

	return len(s) - (bodyStart + 4)
}

// 判断是否像 SIP 请求
// 保证所有符合 RFC3261 的请求通过该测试, 但无效消息未必会被拒绝
func isRequest(startLine string) bool {
	// SIP 请求行刚好包含两个空格
	if strings.Count(startLine, " ") != 2 {
		return false
	}

	// 校验版本字符串以 SIP 开头
	parts := strings.Split(startLine, " ")
	if len(parts) < 3 || len(parts[2]) < 3 {
		return false
	}

	return strings.ToUpper(parts[2][:3]) == "SIP"
}

// 判断是否像 SIP 响应
func isResponse(startLine string) bool {
	// SIP 状态行至少包含两个空格
	if strings.Count(startLine, " ") < 2 {
		return false
	}

	parts := strings.Split(startLine, " ")
	if len(parts) < 3 || len(parts[0]) < 3 {
		return false
	}

	return strings.ToUpper(parts[0][:3]) == "SIP"
}

// ParseRequestLine 解析 SIP 请求的第一行, 如:
//   INVITE sip:bob@example.com SIP/2.0
func ParseRequestLine(requestLine string) (
	method RequestMethod, recipient Uri, sipVersion string, err error) {
	parts := strings.Split(requestLine, " ")
	if len(parts) != 3 {
		err = fmt.Errorf("request line should have 2 spaces: '%s'", requestLine)
		return
	}

	method = RequestMethod(strings.ToUpper(parts[0]))
	recipient, err = ParseUri(parts[1])
	sipVersion = parts[2]

	if _, ok := recipient.(*WildcardUri); ok {
		err = fmt.Errorf("wildcard URI '*' not permitted in request line: '%s'", requestLine)
	}

	return
}

// ParseStatusLine 解析 SIP 响应的第一行, 如:
//   SIP/2.0 200 OK
func ParseStatusLine(statusLine string) (
	sipVersion string, statusCode StatusCode, reasonPhrase string, err error) {
	parts := strings.Split(statusLine, " ")
	if len(parts) < 3 {
		err = fmt.Errorf("status line has too few spaces: '%s'", statusLine)
		return
	}

	sipVersion = parts[0]
	statusCodeRaw, err := strconv.ParseUint(parts[1], 10, 16)
	statusCode = StatusCode(statusCodeRaw)
	reasonPhrase = strings.Join(parts[2:], " ")

	return
}

// ParseUri 将字符串转换为 Uri 对象
// URI 格式错误或 schema 无法识别时返回错误
func ParseUri(uriStr string) (uri Uri, err error) {
	if strings.TrimSpace(uriStr) == "*" {
		// 通配符 URI '*' 只用于 REGISTER 注销时的 Contact 头部
		return &WildcardUri{}, nil
	}

	colonIdx := strings.Index(uriStr, ":")
	if colonIdx == -1 {
		err = fmt.Errorf("no ':' in URI %s", uriStr)
		return
	}

	switch strings.ToLower(uriStr[:colonIdx]) {
	case "sip", "sips":
		// SIPS 与 SIP 格式相同, 共用一个解析函数
		var sipUri *SipUri
		sipUri, err = ParseSipUri(uriStr)
		uri = sipUri
	default:
		err = fmt.Errorf("unsupported URI schema %s", uriStr[:colonIdx])
	}

	return
}

// ParseSipUri 将字符串转换为 SipUri 对象
func ParseSipUri(uriStr string) (uri *SipUri, err error) {
	uri = new(SipUri)

	// 保留原始 URI 用于错误信息
	uriStrCopy := uriStr

	// URI 以 'sip' 或 'sips' 开头
	if len(uriStr) < 3 || strings.ToLower(uriStr[:3]) != "sip" {
		err = fmt.Errorf("invalid SIP uri protocol name in '%s'", uriStrCopy)
		return
	}
	uriStr = uriStr[3:]

	if len(uriStr) > 0 && strings.ToLower(uriStr[0:1]) == "s" {
		// 'sips' 开头, 加密 URI
		uri.FIsEncrypted = true
		uriStr = uriStr[1:]
	}

	// 协议名后应跟 ':'
	if len(uriStr) == 0 || uriStr[0] != ':' {
		err = fmt.Errorf("no ':' after protocol name in SIP uri '%s'", uriStrCopy)
		return
	}
	uriStr = uriStr[1:]

	// user-info 部分以 '@' 结尾, '@' 只会出现在这里
	endOfUserInfoPart := strings.Index(uriStr, "@")
	if endOfUserInfoPart != -1 {
		// user-info 形如: user [ ":" password ] "@"
		endOfUsernamePart := strings.Index(uriStr, ":")
		if endOfUsernamePart > endOfUserInfoPart {
			endOfUsernamePart = -1
		}

		if endOfUsernamePart == -1 {
			// 没有密码部分, '@' 之前都是用户名
			uri.FUser = String{Str: uriStr[:endOfUserInfoPart]}
		} else {
			uri.FUser = String{Str: uriStr[:endOfUsernamePart]}
			uri.FPassword = String{Str: uriStr[endOfUsernamePart+1 : endOfUserInfoPart]}
		}
		uriStr = uriStr[endOfUserInfoPart+1:]
	}

	// ';' 代表 URI 参数部分的开始, 也是 URI 本体的结束
	endOfUriPart := strings.Index(uriStr, ";")
	if endOfUriPart == -1 {
		// 没有 URI 参数, 但可能有头部参数(以 '?' 开始)
		endOfUriPart = strings.Index(uriStr, "?")
	}
	if endOfUriPart == -1 {
		// 完全没有参数, URI 在 host[:port] 之后结束
		endOfUriPart = len(uriStr)
	}

	host, port, err := parseHostPort(uriStr[:endOfUriPart])
	if err != nil {
		return
	}
	uri.FDomain = Addr{Host: host, Port: port}
	uriStr = uriStr[endOfUriPart:]
	if len(uriStr) == 0 {
		uri.FUriParams = NewParams()
		uri.FHeaders = NewParams()
		return
	}

	// 解析 URI 参数
	// ';' 分隔的键值对, 到 URI 末尾或头部参数('?' 开头)为止
	var uriParams Params
	var n int
	if uriStr[0] == ';' {
		uriParams, n, err = parseParams(uriStr, ';', ';', '?', true, true)
		if err != nil {
			return
		}
	} else {
		uriParams, n = NewParams(), 0
	}
	uri.FUriParams = uriParams
	uriStr = uriStr[n:]

	// 解析 URI 头部参数
	// '?' 开头, '&' 分隔的键值对
	var headers Params
	headers, n, err = parseParams(uriStr, '?', '&', 0, true, false)
	if err != nil {
		return
	}
	uri.FHeaders = headers
	uriStr = uriStr[n:]
	if len(uriStr) > 0 {
		err = fmt.Errorf("internal error: parse of SIP uri ended early! '%s'", uriStrCopy)
	}

	return
}

// 解析 host[:port] 文本
// 端口是可选的, 不存在时返回 nil
func parseHostPort(rawText string) (host string, port *Port, err error) {
	colonIdx := strings.Index(rawText, ":")
	if colonIdx == -1 {
		host = rawText
		return
	}

	host = rawText[:colonIdx]
	portRaw, err := strconv.ParseUint(rawText[colonIdx+1:], 10, 16)
	if err != nil {
		return
	}

	portValue := Port(portRaw)
	port = &portValue

	return
}

// 解析 'key=value' 形式的参数串
// source 应以 start 字符开头, 由 sep 分隔, 到 end 字符或字符串末尾结束
// start/end 为 0 表示没有起始/结束分隔符
// quoteValues 为 true 时允许值包裹在双引号中, 引号会被校验且不出现在结果里
// permitSingletons 为 true 时允许没有值的键, 结果中值为 nil
func parseParams(source string,
	start uint8, sep uint8, end uint8,
	quoteValues bool, permitSingletons bool) (
	params Params, consumed int, err error) {

	params = NewParams()

	if len(source) == 0 {
		// 参数区域为空
		return
	}

	// 校验起始字符
	if start != 0 {
		if source[0] != start {
			err = fmt.Errorf("expected %c at start of key-value section; got %c. section was %s",
				start, source[0], source)
			return
		}
		consumed++
	}

	// 逐字符状态机解析
	var buffer bytes.Buffer
	var key string
	parsingKey := true // false 表示正在解析值
	inQuotes := false
parseLoop:
	for ; consumed < len(source); consumed++ {
		switch source[consumed] {
		case end:
			if inQuotes {
				// 引号内的结束符当作值的一部分
				buffer.WriteByte(end)
				continue
			}

			break parseLoop

		case sep:
			if inQuotes {
				// 引号内的分隔符当作值的一部分
				buffer.WriteByte(sep)
				continue
			}
			if parsingKey && permitSingletons {
				params.Add(buffer.String(), nil)
			} else if parsingKey {
				err = fmt.Errorf("singleton param '%s' when parsing params which disallow singletons: \"%s\"",
					buffer.String(), source)
				return
			} else {
				params.Add(key, String{Str: buffer.String()})
			}
			buffer.Reset()
			parsingKey = true

		case '"':
			if !quoteValues {
				// 引号未启用时当作普通字符
				buffer.WriteString("\"")
				continue
			}

			if parsingKey {
				// 键里不允许出现引号
				err = fmt.Errorf("unexpected '\"' in parameter key in params \"%s\"", source)
				return
			}

			if !inQuotes && buffer.Len() != 0 {
				// 值中途出现起始引号, 不允许
				err = fmt.Errorf("unexpected '\"' in params \"%s\"", source)
				return
			}

			if inQuotes && consumed != len(source)-1 && source[consumed+1] != sep {
				// 值中途出现结束引号, 不允许
				err = fmt.Errorf("unexpected character %c after quoted param in \"%s\"",
					source[consumed+1], source)
				return
			}

			inQuotes = !inQuotes

		case '=':
			if buffer.Len() == 0 {
				err = fmt.Errorf("key of length 0 in params \"%s\"", source)
				return
			}
			if !parsingKey {
				err = fmt.Errorf("unexpected '=' char in value token: \"%s\"", source)
				return
			}
			key = buffer.String()
			buffer.Reset()
			parsingKey = false

		default:
			if !inQuotes && strings.Contains(abnfWs, string(source[consumed])) {
				// 跳过引号外的空白
				continue
			}

			buffer.WriteByte(source[consumed])
		}
	}

	// 参数串结束, 校验结束位置合法并保存 buffer 内容
	if inQuotes {
		err = fmt.Errorf("unclosed quotes in parameter string: %s", source)
	} else if parsingKey && permitSingletons {
		if buffer.Len() > 0 {
			params.Add(buffer.String(), nil)
		}
	} else if parsingKey {
		err = fmt.Errorf("singleton param '%s' when parsing params which disallow singletons: \"%s\"",
			buffer.String(), source)
	} else {
		params.Add(key, String{Str: buffer.String()})
	}
	return
}

// 解析 To、From、Contact 类头部
func parseAddressHeader(headerName string, headerText string) (headers []Header, err error) {
	switch headerName {
	case "to", "from", "contact", "t", "f", "m":
		var displayNames []MaybeString
		var uris []Uri
		var paramSets []Params

		displayNames, uris, paramSets, err = parseAddressValues(headerText)
		if err != nil {
			return
		}
		if len(displayNames) != len(uris) || len(uris) != len(paramSets) {
			// parseAddressValues 有 bug 才会走到这里
			err = fmt.Errorf("internal parser error: parsed param mismatch. "+
				"%d display names, %d uris and %d param sets in %s",
				len(displayNames), len(uris), len(paramSets), headerText)
			return
		}

		for idx := 0; idx < len(displayNames); idx++ {
			var header Header
			if headerName == "to" || headerName == "t" {
				if idx > 0 {
					// 一条消息只允许一个 To 头部
					return nil, fmt.Errorf("multiple to: headers in message: %s", headerText)
				}
				if uris[idx].IsWildcard() {
					// 通配符 URI 只允许出现在 Contact 头部
					err = fmt.Errorf("wildcard uri not permitted in to: header: %s", headerText)
					return
				}
				header = &ToHeader{
					DisplayName: displayNames[idx],
					Address:     uris[idx],
					Params:      paramSets[idx],
				}
			} else if headerName == "from" || headerName == "f" {
				if idx > 0 {
					// 一条消息只允许一个 From 头部
					return nil, fmt.Errorf("multiple from: headers in message: %s", headerText)
				}
				if uris[idx].IsWildcard() {
					err = fmt.Errorf("wildcard uri not permitted in from: header: %s", headerText)
					return
				}
				header = &FromHeader{
					DisplayName: displayNames[idx],
					Address:     uris[idx],
					Params:      paramSets[idx],
				}
			} else if headerName == "contact" || headerName == "m" {
				if uris[idx].IsWildcard() {
					if paramSets[idx].Length() > 0 {
						// 通配符 Contact 不允许带参数
						err = fmt.Errorf("wildcard contact header should contain no parameters: '%s'", headerText)
						return
					}
					if _, ok := displayNames[idx].(String); ok {
						// 通配符 Contact 不允许带显示名
						err = fmt.Errorf("wildcard contact header should contain no display name: '%s'", headerText)
						return
					}
				}
				header = &ContactHeader{
					DisplayName: displayNames[idx],
					Address:     uris[idx],
					Params:      paramSets[idx],
				}
			}

			headers = append(headers, header)
		}
	}

	return
}

// 解析 CSeq 头部, 最多返回一个 CSeq
func parseCSeq(headerName string, headerText string) (headers []Header, err error) {
	var cseq CSeq

	parts := splitByWhitespace(headerText)
	if len(parts) != 2 {
		err = fmt.Errorf("CSeq field should have precisely one whitespace section: '%s'", headerText)
		return
	}

	var seqno uint64
	seqno, err = strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return
	}

	if seqno > maxCseq {
		err = fmt.Errorf("invalid CSeq %d: exceeds maximum permitted value 2**31 - 1", seqno)
		return
	}

	cseq.SeqNo = uint32(seqno)
	cseq.MethodName = RequestMethod(strings.ToUpper(strings.TrimSpace(parts[1])))

	if strings.Contains(string(cseq.MethodName), ";") {
		err = fmt.Errorf("unexpected ';' in CSeq body: %s", headerText)
		return
	}

	headers = []Header{&cseq}

	return
}

// 解析 Call-ID 头部
func parseCallId(headerName string, headerText string) (headers []Header, err error) {
	headerText = strings.TrimSpace(headerText)
	callId := CallID(headerText)

	if strings.ContainsAny(string(callId), abnfWs) {
		err = fmt.Errorf("unexpected whitespace in CallID header body '%s'", headerText)
		return
	}
	if strings.Contains(string(callId), ";") {
		err = fmt.Errorf("unexpected semicolon in CallID header body '%s'", headerText)
		return
	}
	if len(string(callId)) == 0 {
		err = fmt.Errorf("empty Call-ID body")
		return
	}

	headers = []Header{&callId}

	return
}

// 解析 Via 头部
// Via 可以是逗号分隔的列表, RFC 3261 规定它们不是独立的 Via 头部,
// 而是同一个 Via 头部上的多个值
func parseViaHeader(headerName string, headerText string) (headers []Header, err error) {
	sections := strings.Split(headerText, ",")
	via := ViaHeader{}
	for _, section := range sections {
		var hop ViaHop
		parts := strings.Split(section, "/")

		if len(parts) < 3 {
			err = fmt.Errorf("not enough protocol parts in via header: '%s'", section)
			return
		}

		parts[2] = strings.Join(parts[2:], "/")

		// transport 部分以空白结束, 但也可能以空白开头
		// 所以 transport 的结束位置是第一个非空白字符之后的第一个空白字符
		initialSpaces := len(parts[2]) - len(strings.TrimLeft(parts[2], abnfWs))
		sentByIdx := strings.IndexAny(parts[2][initialSpaces:], abnfWs) + initialSpaces + 1
		if sentByIdx == 0 {
			err = fmt.Errorf("expected whitespace after sent-protocol part in via header '%s'", section)
			return
		} else if sentByIdx == 1 {
			err = fmt.Errorf("empty transport field in via header '%s'", section)
			return
		}

		hop.ProtocolName = strings.TrimSpace(parts[0])
		hop.ProtocolVersion = strings.TrimSpace(parts[1])
		hop.Transport = strings.TrimSpace(parts[2][:sentByIdx-1])

		if len(hop.ProtocolName) == 0 {
			err = fmt.Errorf("no protocol name provided in via header '%s'", section)
		} else if len(hop.ProtocolVersion) == 0 {
			err = fmt.Errorf("no version provided in via header '%s'", section)
		} else if len(hop.Transport) == 0 {
			err = fmt.Errorf("no transport provided in via header '%s'", section)
		}
		if err != nil {
			return
		}

		viaBody := parts[2][sentByIdx:]

		paramsIdx := strings.Index(viaBody, ";")
		var host string
		var port *Port
		if paramsIdx == -1 {
			// 没有参数, Via 剩余部分都是 host[:port]
			host, port, err = parseHostPort(strings.TrimSpace(viaBody))
			if err != nil {
				return
			}
			hop.Host = host
			hop.Port = port
			hop.Params = NewParams()
		} else {
			host, port, err = parseHostPort(strings.TrimSpace(viaBody[:paramsIdx]))
			if err != nil {
				return
			}
			hop.Host = host
			hop.Port = port

			hop.Params, _, err = parseParams(viaBody[paramsIdx:], ';', ';', 0, true, true)
			if err != nil {
				return
			}
		}
		via = append(via, &hop)
	}

	headers = []Header{via}
	return
}

// 解析 Max-Forwards 头部
func parseMaxForwards(headerName string, headerText string) (headers []Header, err error) {
	var value uint64
	value, err = strconv.ParseUint(strings.TrimSpace(headerText), 10, 32)
	maxForwards := MaxForwards(value)

	headers = []Header{&maxForwards}
	return
}

// 解析 Content-Length 头部
func parseContentLength(headerName string, headerText string) (headers []Header, err error) {
	var value uint64
	value, err = strconv.ParseUint(strings.TrimSpace(headerText), 10, 32)
	contentLength := ContentLength(value)

	headers = []Header{&contentLength}
	return
}

// 解析 Content-Type 头部
func parseContentType(headerName string, headerText string) (headers []Header, err error) {
	contentType := ContentType(strings.TrimSpace(headerText))
	headers = []Header{&contentType}
	return
}

// 解析 Expires 头部
func parseExpires(headerName string, headerText string) (headers []Header, err error) {
	var value uint64
	value, err = strconv.ParseUint(strings.TrimSpace(headerText), 10, 32)
	expires := Expires(value)

	headers = []Header{&expires}
	return
}

// 解析 User-Agent 头部
func parseUserAgent(headerName string, headerText string) (headers []Header, err error) {
	userAgent := UserAgentHeader(strings.TrimSpace(headerText))
	headers = []Header{&userAgent}
	return
}

// parseAddressValues 解析逗号分隔的地址列表
// 能识别 < > 括号和引号, 不会在其内部的逗号处断开
func parseAddressValues(addresses string) (
	displayNames []MaybeString, uris []Uri, headerParams []Params, err error) {

	prevIdx := 0
	inBrackets := false
	inQuotes := false

	// 末尾补一个逗号以简化解析: 按逗号切分地址段
	addresses = addresses + ","

	for idx, char := range addresses {
		if char == '<' && !inQuotes {
			inBrackets = true
		} else if char == '>' && !inQuotes {
			inBrackets = false
		} else if char == '"' {
			inQuotes = !inQuotes
		} else if !inQuotes && !inBrackets && char == ',' {
			var displayName MaybeString
			var uri Uri
			var params Params
			displayName, uri, params, err = parseAddressValue(addresses[prevIdx:idx])
			if err != nil {
				return
			}
			prevIdx = idx + 1

			displayNames = append(displayNames, displayName)
			uris = append(uris, uri)
			headerParams = append(headerParams, params)
		}
	}

	return
}

// parseAddressValue 解析单个地址(来自 From、To 或 Contact 头部), 返回:
//   - 显示名(可能为 nil)
//   - 解析出的 Uri 对象
//   - 头部参数
// 见 RFC 3261 section 20.10
// 本函数不接受逗号分隔的地址列表, 列表应交给 parseAddressValues
func parseAddressValue(addressText string) (
	displayName MaybeString, uri Uri, headerParams Params, err error) {

	headerParams = NewParams()

	if len(addressText) == 0 {
		err = fmt.Errorf("address-type header has empty body")
		return
	}

	addressTextCopy := addressText
	addressText = strings.TrimSpace(addressText)

	firstAngleBracket := findUnescaped(addressText, '<', quotesDelim)
	if firstAngleBracket > 0 {
		// 角括号之前还有字符, 由于已去掉空白, 必然是显示名
		if addressText[0] == '"' {
			// 显示名在引号内, 到下一个引号为止
			addressText = addressText[1:]
			nextQuote := strings.Index(addressText, "\"")

			if nextQuote == -1 {
				// 引号未闭合
				err = fmt.Errorf("unclosed quotes in header text: %s", addressTextCopy)
				return
			}

			displayName = String{Str: addressText[:nextQuote]}
			addressText = addressText[nextQuote+1:]
		} else {
			// 显示名未加引号, 到角括号为止(去掉两侧空白)
			displayName = String{Str: strings.TrimSpace(addressText[:firstAngleBracket])}
			addressText = addressText[firstAngleBracket:]
		}
	}

	// 确定 URI 的起止位置
	addressText = strings.TrimSpace(addressText)
	var endOfUri int
	var startOfParams int
	if addressText[0] != '<' {
		if _, ok := displayName.(String); ok {
			// 有显示名时地址必须在角括号内
			err = fmt.Errorf("invalid character '%c' following display "+
				"name in address line; expected '<': %s", addressText[0], addressTextCopy)
			return
		}

		endOfUri = strings.Index(addressText, ";")
		if endOfUri == -1 {
			endOfUri = len(addressText)
		}
		startOfParams = endOfUri
	} else {
		addressText = addressText[1:]
		endOfUri = strings.Index(addressText, ">")
		if endOfUri == -1 {
			err = fmt.Errorf("'<' without closing '>' in address %s", addressTextCopy)
			return
		}
		startOfParams = endOfUri + 1
	}

	// 解析 URI 本体
	uri, err = ParseUri(addressText[:endOfUri])
	if err != nil {
		return
	}

	if startOfParams >= len(addressText) {
		return
	}

	// 解析头部参数
	addressText = addressText[startOfParams:]
	headerParams, _, err = parseParams(addressText, ';', ';', ',', true, true)
	return
}

// delimiter 是用来包裹文本的一对字符(批量转义)
type delimiter struct {
	start uint8
	end   uint8
}

var quotesDelim = delimiter{'"', '"'}

// 在不被 delims 包裹的文本范围内查找 target 第一次出现的位置
func findUnescaped(text string, target uint8, delims ...delimiter) int {
	return findAnyUnescaped(text, string(target), delims...)
}

func findAnyUnescaped(text string, targets string, delims ...delimiter) int {
	escaped := false
	var endEscape uint8 = 0

	endChars := make(map[uint8]uint8)
	for _, delim := range delims {
		endChars[delim.start] = delim.end
	}

	for idx := 0; idx < len(text); idx++ {
		if !escaped && strings.Contains(targets, string(text[idx])) {
			return idx
		}

		if escaped {
			escaped = text[idx] != endEscape
			continue
		} else {
			endEscape, escaped = endChars[text[idx]]
		}
	}

	return -1
}

// 按空白(abnfWs)切分字符串
func splitByWhitespace(text string) []string {
	var buffer bytes.Buffer
	var inString = true
	result := make([]string, 0)

	for _, char := range text {
		if unicode.IsSpace(char) {
			if inString {
				result = append(result, buffer.String())
				buffer.Reset()
			}
			inString = false
		} else {
			buffer.WriteRune(char)
			inString = true
		}
	}

	if buffer.Len() > 0 {
		result = append(result, buffer.String())
	}

	return result
}
