package expr

import "fmt"

// Parser is a recursive-descent parser over a token slice. Precedence from
// lowest to highest: ||, &&, equality, comparison, additive, multiplicative,
// unary, postfix.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse turns expression source into an AST.
func Parse(src string) (Node, error) {
	tokens, err := NewLexer(src).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", tok.Value, tok.Pos)
	}
	return node, nil
}

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) isOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.Type != TokenOperator {
		return "", false
	}
	for _, op := range ops {
		if tok.Value == op {
			return op, true
		}
	}
	return "", false
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	tok := p.next()
	if tok.Type != tt {
		if tok.Type == TokenEOF {
			return tok, fmt.Errorf("expected %s but reached end of expression", what)
		}
		return tok, fmt.Errorf("expected %s at position %d, got %q", what, tok.Pos, tok.Value)
	}
	return tok, nil
}

func (p *Parser) binaryLevel(next func() (Node, error), ops ...string) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp(ops...)
		if !ok {
			return left, nil
		}
		at := p.next().Pos
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right, At: at}
	}
}

func (p *Parser) parseOr() (Node, error) {
	return p.binaryLevel(p.parseAnd, "||")
}

func (p *Parser) parseAnd() (Node, error) {
	return p.binaryLevel(p.parseEquality, "&&")
}

func (p *Parser) parseEquality() (Node, error) {
	return p.binaryLevel(p.parseComparison, "==", "!=", "===", "!==")
}

func (p *Parser) parseComparison() (Node, error) {
	return p.binaryLevel(p.parseAdditive, "<", "<=", ">", ">=")
}

func (p *Parser) parseAdditive() (Node, error) {
	return p.binaryLevel(p.parseMultiplicative, "+", "-")
}

func (p *Parser) parseMultiplicative() (Node, error) {
	return p.binaryLevel(p.parseUnary, "*", "/", "%")
}

func (p *Parser) parseUnary() (Node, error) {
	if op, ok := p.isOp("!", "-"); ok {
		at := p.next().Pos
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Operand: operand, At: at}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		switch tok.Type {
		case TokenDot:
			p.next()
			name := p.next()
			if name.Type != TokenIdentifier && !isKeyword(name.Type) {
				return nil, fmt.Errorf("expected property name after '.' at position %d", tok.Pos)
			}
			node = &Member{Object: node, Property: name.Value, At: tok.Pos}
		case TokenLeftBracket:
			p.next()
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRightBracket, "']'"); err != nil {
				return nil, err
			}
			node = &Index{Object: node, Index: idx, At: tok.Pos}
		case TokenLeftParen:
			ident, ok := node.(*Ident)
			if !ok {
				return nil, fmt.Errorf("only named functions can be called (position %d)", tok.Pos)
			}
			p.next()
			args, err := p.parseList(TokenRightParen, "')'")
			if err != nil {
				return nil, err
			}
			node = &Call{Name: ident.Name, Args: args, At: ident.At}
		default:
			return node, nil
		}
	}
}

func (p *Parser) parseList(closer TokenType, what string) ([]Node, error) {
	var items []Node
	if p.peek().Type == closer {
		p.next()
		return items, nil
	}
	for {
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.peek().Type == TokenComma {
			p.next()
			continue
		}
		if _, err := p.expect(closer, what); err != nil {
			return nil, err
		}
		return items, nil
	}
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.Type {
	case TokenNumber, TokenString:
		return &Literal{Value: tok.Literal, At: tok.Pos}, nil
	case TokenTrue:
		return &Literal{Value: true, At: tok.Pos}, nil
	case TokenFalse:
		return &Literal{Value: false, At: tok.Pos}, nil
	case TokenNull, TokenUndefined:
		return &Literal{Value: nil, At: tok.Pos}, nil
	case TokenIdentifier:
		return &Ident{Name: tok.Value, At: tok.Pos}, nil
	case TokenLeftParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case TokenLeftBracket:
		elems, err := p.parseList(TokenRightBracket, "']'")
		if err != nil {
			return nil, err
		}
		return &ArrayLit{Elems: elems, At: tok.Pos}, nil
	case TokenLeftBrace:
		return p.parseObject(tok.Pos)
	case TokenEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q at position %d", tok.Value, tok.Pos)
	}
}

func (p *Parser) parseObject(at int) (Node, error) {
	obj := &ObjectLit{At: at}
	if p.peek().Type == TokenRightBrace {
		p.next()
		return obj, nil
	}
	for {
		key := p.next()
		if key.Type != TokenIdentifier && key.Type != TokenString && !isKeyword(key.Type) {
			return nil, fmt.Errorf("expected object key at position %d", key.Pos)
		}
		if _, err := p.expect(TokenColon, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		obj.Keys = append(obj.Keys, key.Value)
		obj.Values = append(obj.Values, val)

		if p.peek().Type == TokenComma {
			p.next()
			continue
		}
		if _, err := p.expect(TokenRightBrace, "'}'"); err != nil {
			return nil, err
		}
		return obj, nil
	}
}

func isKeyword(tt TokenType) bool {
	return tt == TokenTrue || tt == TokenFalse || tt == TokenNull || tt == TokenUndefined
}
