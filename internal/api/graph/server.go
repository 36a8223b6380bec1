package graph

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/service"
)

// GraphQLServer GraphQL服务器
type GraphQLServer struct {
	schema   *graphql.Schema
	handler  *relay.Handler
	resolver *Resolver
}

// GraphQL Schema定义
const schemaString = `
type RankedGame {
  rank: Int!
  name: String!
  votes: Int!
}

type RankInfo {
  rank: Int!
  votes: Int!
  totalGames: Int!
}

type GameStatistics {
  gameName: String!
  voteCount: Int!
  totalVotes: Int!
  uniqueVoters: Int!
  firstVote: String
  lastVote: String
}

type GlobalStatistics {
  totalVotes: Int!
  uniqueGames: Int!
  uniqueVoters: Int!
}

type ManualVoteResponse {
  success: Boolean!
  message: String!
  gameName: String!
  votes: Int!
  isNew: Boolean!
}

type Query {
  # 完整排行榜（票数降序，同票按名字升序）
  leaderboard: [RankedGame!]!

  # 查询单个游戏的票数，游戏不存在返回null
  gameVotes(name: String!): Int

  # 查询单个游戏的排名，游戏不存在返回null
  gameRank(name: String!): RankInfo

  # 子串搜索游戏名
  searchGames(term: String!, limit: Int): [String!]!

  # 单个游戏的投票统计
  gameStatistics(name: String!): GameStatistics!

  # 全局投票统计
  globalStatistics: GlobalStatistics!
}

type Mutation {
  # 手动录入投票（操作者路径）
  manualVote(name: String!, votes: Int!): ManualVoteResponse!
}

schema {
  query: Query
  mutation: Mutation
}
`

// NewGraphQLServer 创建新的GraphQL服务器
func NewGraphQLServer(voteService *service.VoteService) *GraphQLServer {
	resolver := NewResolver(voteService)

	schema := graphql.MustParseSchema(schemaString, resolver,
		graphql.UseFieldResolvers(),
	)

	handler := &relay.Handler{Schema: schema}

	return &GraphQLServer{
		schema:   schema,
		handler:  handler,
		resolver: resolver,
	}
}

// Start 启动HTTP服务器
func (s *GraphQLServer) Start(port int) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// GraphQL API端点
	router.POST(config.AppConfig.GraphQL.Path, gin.WrapH(s.handler))

	// GraphQL Playground
	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(playgroundHTML))
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("GraphQL服务已启动，API端点: %s, Playground: http://localhost%s/",
		config.AppConfig.GraphQL.Path, addr)

	return router.Run(addr)
}
